package export

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relatore/internal/slides"
)

// fakeRenderer records the staged HTML and serves canned captures.
type fakeRenderer struct {
	staged    []string
	captures  int
	failOn    map[int]bool
	stageFail bool
	image     []byte
}

func (f *fakeRenderer) Stage(_ context.Context, html string) error {
	if f.stageFail {
		return errors.New("stage failed")
	}
	f.staged = append(f.staged, html)
	return nil
}

func (f *fakeRenderer) Capture(_ context.Context) ([]byte, error) {
	f.captures++
	if f.failOn[f.captures] {
		return nil, errors.New("capture failed")
	}
	return f.image, nil
}

func (f *fakeRenderer) Close() error { return nil }

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func deckN(n int) []slides.Slide {
	deck := make([]slides.Slide, n)
	for i := range deck {
		deck[i] = slides.Slide{
			Title:    "Slide",
			Body:     "- a point\n- another",
			ImageRef: "ok",
		}
	}
	return deck
}

func TestBuildPagesOnePerSlide(t *testing.T) {
	renderer := &fakeRenderer{image: tinyPNG(t)}
	e := NewExporter(renderer, nil)

	pages := e.buildPages(context.Background(), deckN(3))

	require.Len(t, pages, 3)
	for _, p := range pages {
		assert.False(t, p.failed)
		assert.NotEmpty(t, p.image)
	}
	assert.Len(t, renderer.staged, 3)
}

func TestBuildPagesCaptureFailure(t *testing.T) {
	renderer := &fakeRenderer{image: tinyPNG(t), failOn: map[int]bool{2: true}}
	e := NewExporter(renderer, nil)

	pages := e.buildPages(context.Background(), deckN(3))

	require.Len(t, pages, 3, "a slide failure still emits a page")
	assert.False(t, pages[0].failed)
	assert.True(t, pages[1].failed)
	assert.False(t, pages[2].failed)
}

func TestBuildPagesStageFailure(t *testing.T) {
	renderer := &fakeRenderer{stageFail: true}
	e := NewExporter(renderer, nil)

	pages := e.buildPages(context.Background(), deckN(2))
	require.Len(t, pages, 2)
	for _, p := range pages {
		assert.True(t, p.failed)
	}
}

func TestExportProducesPDF(t *testing.T) {
	renderer := &fakeRenderer{image: tinyPNG(t), failOn: map[int]bool{3: true}}
	e := NewExporter(renderer, nil)

	var out bytes.Buffer
	require.NoError(t, e.Export(context.Background(), deckN(3), &out))

	data := out.String()
	assert.True(t, strings.HasPrefix(data, "%PDF-"))
	// One page object per slide even though slide 3 failed to capture.
	pageObjects := strings.Count(data, "/Type /Page") - strings.Count(data, "/Type /Pages")
	assert.Equal(t, 3, pageObjects)
}

func TestSlideHTML(t *testing.T) {
	t.Run("markdown body becomes a list", func(t *testing.T) {
		html, err := slideHTML(slides.Slide{Title: "AML & KYC", Body: "- first\n- second"})
		require.NoError(t, err)
		assert.Contains(t, html, "<li>first</li>")
		assert.Contains(t, html, "AML &amp; KYC")
	})

	t.Run("failed image gets placeholder", func(t *testing.T) {
		html, err := slideHTML(slides.Slide{Title: "T", Body: "x", ImageRef: slides.ImageError})
		require.NoError(t, err)
		assert.Contains(t, html, "image unavailable")
		assert.NotContains(t, html, "<img")
	})

	t.Run("image embedded as data URI", func(t *testing.T) {
		html, err := slideHTML(slides.Slide{Title: "T", Body: "x", ImageRef: "ok", Image: []byte{9}})
		require.NoError(t, err)
		assert.Contains(t, html, "data:image/png;base64,")
	})
}
