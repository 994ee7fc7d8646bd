package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, "imagen-3.0-generate-002", cfg.LLM.ImageModel)
	assert.Equal(t, 2*time.Minute, cfg.LLMTimeout())
	assert.NotEmpty(t, cfg.Prompt.BaseInstruction)
	assert.Equal(t, 1280, cfg.Export.ViewportWidth)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  model: gemini-2.5-pro
  timeout: 30s
  enable_web_search: true
audio:
  voice_replies: true
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout())
	assert.True(t, cfg.LLM.EnableWebSearch)
	assert.True(t, cfg.Audio.VoiceReplies)

	// Untouched values keep their defaults.
	assert.Equal(t, "imagen-3.0-generate-002", cfg.LLM.ImageModel)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("RELATORE_MODEL", "gemini-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "gemini-env", cfg.LLM.Model)
}

func TestBadTimeoutFallsBack(t *testing.T) {
	cfg := Default()
	cfg.LLM.Timeout = "not-a-duration"
	assert.Equal(t, 2*time.Minute, cfg.LLMTimeout())
}
