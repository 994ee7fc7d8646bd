package export

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"relatore/internal/slides"
)

// page is one rasterized slide. When failed is set the rasterized
// bytes are absent and the PDF gets an error-marker page instead.
type page struct {
	image  []byte
	failed bool
	title  string
}

// Exporter turns a finished deck into a multi-page PDF document.
type Exporter struct {
	renderer Renderer
	logger   *zap.Logger
}

// NewExporter creates an exporter over the given render target.
func NewExporter(renderer Renderer, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{renderer: renderer, logger: logger}
}

// Export rasterizes each slide in order and writes a landscape A4 PDF
// with exactly one page per slide. Per-slide rasterization failures are
// swallowed: the page is still emitted with a visible error marker, so
// export always completes.
func (e *Exporter) Export(ctx context.Context, deck []slides.Slide, w io.Writer) error {
	pages := e.buildPages(ctx, deck)
	return writePDF(pages, w)
}

// buildPages runs the sequential stage-then-capture pass. Slide i+1
// never starts before slide i finishes: the renderer is a single shared
// surface.
func (e *Exporter) buildPages(ctx context.Context, deck []slides.Slide) []page {
	pages := make([]page, 0, len(deck))
	for i, slide := range deck {
		p := page{title: slide.Title}

		html, err := slideHTML(slide)
		if err == nil {
			if err = e.renderer.Stage(ctx, html); err == nil {
				p.image, err = e.renderer.Capture(ctx)
			}
		}
		if err != nil {
			e.logger.Warn("slide export failed",
				zap.Int("slide", i+1),
				zap.Error(err))
			p.failed = true
			p.image = nil
		}
		pages = append(pages, p)
	}
	return pages
}

func writePDF(pages []page, w io.Writer) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pageW, pageH := 297.0, 210.0

	for i, p := range pages {
		pdf.AddPage()
		if !p.failed && len(p.image) > 0 {
			name := fmt.Sprintf("page-%d", i+1)
			opts := gofpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(p.image))
			if !pdf.Err() {
				pdf.ImageOptions(name, 0, 0, pageW, pageH, false, opts, 0, "")
				continue
			}
			// Undecodable capture bytes; emit the marker page instead.
			pdf.ClearError()
		}

		pdf.SetFont("Helvetica", "B", 20)
		pdf.SetTextColor(120, 120, 120)
		pdf.SetXY(20, pageH/2-10)
		pdf.CellFormat(pageW-40, 10, fmt.Sprintf("Slide %d could not be rendered", i+1), "", 1, "C", false, 0, "")
		if p.title != "" {
			pdf.SetFont("Helvetica", "", 14)
			pdf.CellFormat(pageW-40, 10, p.title, "", 1, "C", false, 0, "")
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
