// Package slides turns a structured generation response into a finished
// slide deck, synthesizing one image per slide.
package slides

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ImageError marks a slide whose image synthesis failed. The deck is
// still complete; the viewer renders a placeholder for it.
const ImageError = "ERROR"

// Spec is one slide as returned by structured generation.
type Spec struct {
	Title       string `json:"title" validate:"required"`
	Body        string `json:"content" validate:"required"`
	ImagePrompt string `json:"imagePrompt" validate:"required"`
}

// Slide is a finished slide. ImageRef is empty while synthesis is
// pending, then either the raw image bytes reference or ImageError.
type Slide struct {
	Title       string
	Body        string
	ImagePrompt string
	ImageRef    string
	Image       []byte
}

// deck is the envelope shape of a structured generation response.
type deck struct {
	Slides []Spec `json:"slides" validate:"required,min=1,dive"`
}

// ErrMalformedDeck is returned when the structured response cannot be
// used. Recoverable: the session reports it and returns to idle.
var ErrMalformedDeck = errors.New("malformed or empty slide response")

var validate = validator.New()

// Schema returns the structural JSON schema enforced on the backend:
// an object with one array field whose items each require exactly the
// three string properties.
func Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"slides": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"content":     map[string]any{"type": "string"},
						"imagePrompt": map[string]any{"type": "string"},
					},
					"required": []string{"title", "content", "imagePrompt"},
				},
			},
		},
		"required": []string{"slides"},
	}
}

// ParseDeck decodes and validates a structured generation response.
func ParseDeck(raw []byte) ([]Spec, error) {
	var d deck
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDeck, err)
	}
	if err := validate.Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDeck, err)
	}
	return d.Slides, nil
}
