// Package config loads relatore configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all relatore configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Storage StorageConfig `yaml:"storage"`
	Audio   AudioConfig   `yaml:"audio"`
	Export  ExportConfig  `yaml:"export"`
	Prompt  PromptConfig  `yaml:"prompt"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the Gemini backend.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	ImageModel      string `yaml:"image_model"`
	EmbeddingModel  string `yaml:"embedding_model"`
	BaseURL         string `yaml:"base_url"`
	Timeout         string `yaml:"timeout"`
	EnableWebSearch bool   `yaml:"enable_web_search"`
}

// StorageConfig configures local persistence.
type StorageConfig struct {
	Dir          string `yaml:"dir"`
	KnowledgeDir string `yaml:"knowledge_dir"`
}

// AudioConfig holds the speech preferences.
type AudioConfig struct {
	VoiceReplies bool    `yaml:"voice_replies"`
	Voice        string  `yaml:"voice"`
	Rate         float64 `yaml:"rate"`
}

// ExportConfig configures the document exporter.
type ExportConfig struct {
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
}

// PromptConfig holds the base instruction and welcome text.
type PromptConfig struct {
	BaseInstruction string `yaml:"base_instruction"`
	WelcomeMessage  string `yaml:"welcome_message"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Console    bool   `yaml:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".relatore")
	return &Config{
		LLM: LLMConfig{
			Model:          "gemini-2.5-flash",
			ImageModel:     "imagen-3.0-generate-002",
			EmbeddingModel: "gemini-embedding-001",
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			Timeout:        "2m",
		},
		Storage: StorageConfig{
			Dir:          dataDir,
			KnowledgeDir: filepath.Join(dataDir, "knowledge"),
		},
		Audio: AudioConfig{Rate: 1.0},
		Export: ExportConfig{
			ViewportWidth:  1280,
			ViewportHeight: 720,
		},
		Prompt: PromptConfig{
			BaseInstruction: "You are a knowledgeable consulting assistant. Answer precisely, cite the knowledge sources you were given, and keep a professional tone.",
			WelcomeMessage:  "Hello! How can I help you today?",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(dataDir, "logs", "relatore.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Load reads the YAML file at path, falling back to defaults when it
// does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("RELATORE_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("RELATORE_DATA_DIR"); v != "" {
		c.Storage.Dir = v
	}
}

// LLMTimeout parses the configured backend timeout.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}
