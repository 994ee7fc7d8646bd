package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ImageOptions configures image generation. Exactly one image is
// produced per call.
type ImageOptions struct {
	AspectRatio string // e.g. "16:9"
}

// GenerateImage synthesizes a single image for the prompt and returns
// the raw image bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	aspect := opts.AspectRatio
	if aspect == "" {
		aspect = "16:9"
	}

	reqBody := PredictRequest{
		Instances: []PredictInstance{{Prompt: prompt}},
		Parameters: PredictParameters{
			SampleCount: 1,
			AspectRatio: aspect,
		},
	}

	url := fmt.Sprintf("%s/models/%s:predict?key=%s", c.baseURL, c.imageModel, c.apiKey)
	body, err := c.post(ctx, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}

	var resp PredictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("image generation: parse response: %w", err)
	}
	if resp.Error != nil {
		if resp.Error.Code == http.StatusTooManyRequests || resp.Error.Status == "RESOURCE_EXHAUSTED" {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, resp.Error.Message)
		}
		return nil, fmt.Errorf("image generation: API error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("image generation: no predictions in response")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("image generation: decode payload: %w", err)
	}

	c.logger.Debug("image generated",
		zap.Int("prompt_len", len(prompt)),
		zap.Int("bytes", len(data)))
	return data, nil
}
