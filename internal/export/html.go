package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"relatore/internal/slides"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// slideHTML renders one slide into a standalone page for the off-screen
// surface. The slide body is markdown with list syntax.
func slideHTML(s slides.Slide) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(s.Body), &body); err != nil {
		return "", fmt.Errorf("render slide body: %w", err)
	}

	var img string
	switch {
	case s.ImageRef == slides.ImageError:
		img = `<div class="image missing">image unavailable</div>`
	case len(s.Image) > 0:
		img = fmt.Sprintf(`<img class="image" src="data:image/png;base64,%s" alt="">`,
			base64.StdEncoding.EncodeToString(s.Image))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><style>
body { margin: 0; font-family: Helvetica, Arial, sans-serif; background: #ffffff; }
.slide { box-sizing: border-box; width: 100vw; height: 100vh; padding: 48px 64px; display: flex; }
.text { flex: 3; }
h1 { font-size: 44px; margin: 0 0 24px; color: #1a237e; }
.body { font-size: 22px; line-height: 1.5; }
.image { flex: 2; max-width: 38%%; object-fit: contain; align-self: center; margin-left: 32px; }
.image.missing { display: flex; align-items: center; justify-content: center; background: #eceff1; color: #90a4ae; font-size: 18px; height: 60%%; }
</style></head>
<body><div class="slide"><div class="text"><h1>%s</h1><div class="body">%s</div></div>%s</div></body></html>`,
		html.EscapeString(s.Title), body.String(), img), nil
}
