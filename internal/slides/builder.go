package slides

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"relatore/internal/gemini"
)

// ImageGenerator synthesizes one image per call.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts gemini.ImageOptions) ([]byte, error)
}

// Progress receives pipeline updates. Implementations must be cheap;
// they run inline between slides.
type Progress interface {
	SlideStarted(index, total int)
	SlideFinished(index, total int, failed bool)
	Notice(text string)
}

// NopProgress discards all updates.
type NopProgress struct{}

func (NopProgress) SlideStarted(int, int)        {}
func (NopProgress) SlideFinished(int, int, bool) {}
func (NopProgress) Notice(string)                {}

// Builder runs the presentation pipeline.
type Builder struct {
	generator   ImageGenerator
	aspectRatio string
	logger      *zap.Logger
}

// NewBuilder creates a builder. aspectRatio defaults to 16:9.
func NewBuilder(generator ImageGenerator, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		generator:   generator,
		aspectRatio: "16:9",
		logger:      logger,
	}
}

// Build synthesizes images for the specs strictly in order, one at a
// time. A slide's failure never aborts the pass: the slide gets the
// ImageError sentinel and processing continues. Always returns exactly
// len(specs) slides, none pending. When k>=1 images failed, one
// aggregated notice naming k of N is published after the full pass.
func (b *Builder) Build(ctx context.Context, specs []Spec, progress Progress) []Slide {
	if progress == nil {
		progress = NopProgress{}
	}

	total := len(specs)
	out := make([]Slide, 0, total)
	failures := 0

	for i, spec := range specs {
		progress.SlideStarted(i, total)

		slide := Slide{
			Title:       spec.Title,
			Body:        spec.Body,
			ImagePrompt: spec.ImagePrompt,
		}

		data, err := b.generator.GenerateImage(ctx, spec.ImagePrompt, gemini.ImageOptions{
			AspectRatio: b.aspectRatio,
		})
		if err != nil {
			b.logger.Warn("slide image failed",
				zap.Int("slide", i+1),
				zap.Error(err))
			slide.ImageRef = ImageError
			failures++
		} else {
			slide.Image = data
			slide.ImageRef = fmt.Sprintf("slide-%d", i+1)
		}

		out = append(out, slide)
		progress.SlideFinished(i, total, err != nil)
	}

	if failures > 0 {
		progress.Notice(failureNotice(failures, total))
	}
	return out
}

// failureNotice builds the aggregated message: singular phrasing iff
// exactly one image failed.
func failureNotice(failed, total int) string {
	if failed == 1 {
		return fmt.Sprintf("1 image out of %d could not be generated.", total)
	}
	return fmt.Sprintf("%d images out of %d could not be generated.", failed, total)
}
