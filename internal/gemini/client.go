// Package gemini is the backend client: chat sessions, schema-constrained
// content generation and per-slide image synthesis against the Gemini
// REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRateLimited marks a 429 or quota-exhausted backend failure. The
// session treats chat-turn failures carrying it (or any other backend
// error) as a rate-limit condition.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config holds configuration for the client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
		Model:      "gemini-2.5-flash",
		ImageModel: "imagen-3.0-generate-002",
		Timeout:    2 * time.Minute,
		MaxRetries: 2,
	}
}

// Client talks to the Gemini API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	maxRetries int
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// NewClient creates a client with default config.
func NewClient(apiKey string, logger *zap.Logger) *Client {
	return NewClientWithConfig(DefaultConfig(apiKey), logger)
}

// NewClientWithConfig creates a client with custom config.
func NewClientWithConfig(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	imageModel := strings.TrimSpace(config.ImageModel)
	if imageModel == "" {
		imageModel = "imagen-3.0-generate-002"
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiKey:     config.APIKey,
		baseURL:    config.BaseURL,
		model:      model,
		imageModel: imageModel,
		maxRetries: config.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Model returns the configured chat model.
func (c *Client) Model() string {
	return c.model
}

// generateContent posts a request to models/<model>:generateContent and
// decodes the response, retrying transient failures with exponential
// backoff.
func (c *Client) generateContent(ctx context.Context, model string, reqBody GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	// Auto-apply timeout if context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	// Keep at least 100ms between requests.
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)

	body, err := c.post(ctx, url, reqBody)
	if err != nil {
		return nil, err
	}

	var resp GenerateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		if resp.Error.Code == http.StatusTooManyRequests || resp.Error.Status == "RESOURCE_EXHAUSTED" {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, resp.Error.Message)
		}
		return nil, fmt.Errorf("API error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, url string, reqBody any) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		c.logger.Debug("gemini request",
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", i),
			zap.Duration("took", time.Since(start)))

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%w (429)", ErrRateLimited)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error (%d): %s", resp.StatusCode, truncate(string(body), 200))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, truncate(string(body), 500))
		}
		return body, nil
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *GenerateResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
