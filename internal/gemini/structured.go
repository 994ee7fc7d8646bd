package gemini

import (
	"context"
	"fmt"
	"strings"
)

// GenerateStructured asks for JSON output conforming to the given
// schema and returns the raw JSON bytes. Markdown code fences are
// stripped when a model wraps its output despite the declared mime
// type. Parsing and validation belong to the caller; malformed output
// there is a recoverable error, never a crash.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) ([]byte, error) {
	req := GenerateRequest{
		Contents: []Content{{
			Role:  "user",
			Parts: []Part{{Text: prompt}},
		}},
		GenerationConfig: &GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	}

	resp, err := c.generateContent(ctx, c.model, req)
	if err != nil {
		return nil, fmt.Errorf("structured generation: %w", err)
	}

	text := cleanJSON(responseText(resp))
	if text == "" {
		return nil, fmt.Errorf("structured generation: empty response")
	}
	return []byte(text), nil
}

// cleanJSON strips ```json fences some models wrap around JSON output.
func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
