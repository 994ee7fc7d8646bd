// Package export rasterizes finished slides off-screen and assembles
// them into a paginated landscape PDF.
package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Renderer is the off-screen render target. Stage commits new content,
// Capture rasterizes the surface. The exporter reuses one renderer for
// every slide, so calls are strictly sequential.
type Renderer interface {
	Stage(ctx context.Context, html string) error
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// RodRenderer renders HTML in a headless Chrome page via go-rod.
// Instead of a fixed post-stage delay it waits for the page to report
// stable layout before capture.
type RodRenderer struct {
	width  int
	height int

	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

// NewRodRenderer creates a renderer with a fixed landscape viewport.
func NewRodRenderer(width, height int) *RodRenderer {
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	return &RodRenderer{width: width, height: height}
}

func (r *RodRenderer) ensureStarted(ctx context.Context) error {
	if r.page != nil {
		return nil
	}

	url, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(url).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             r.width,
		Height:            r.height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		_ = browser.Close()
		return fmt.Errorf("set viewport: %w", err)
	}

	r.browser = browser
	r.page = page
	return nil
}

// Stage loads the HTML into the off-screen page and waits for layout
// to settle.
func (r *RodRenderer) Stage(ctx context.Context, html string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureStarted(ctx); err != nil {
		return err
	}
	if err := r.page.Context(ctx).SetDocumentContent(html); err != nil {
		return fmt.Errorf("stage content: %w", err)
	}
	if err := r.page.Context(ctx).WaitStable(300 * time.Millisecond); err != nil {
		return fmt.Errorf("wait for render: %w", err)
	}
	return nil
}

// Capture rasterizes the current page to a PNG.
func (r *RodRenderer) Capture(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.page == nil {
		return nil, fmt.Errorf("renderer not staged")
	}
	data, err := r.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return data, nil
}

// Close tears down the page and browser.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.page != nil {
		_ = r.page.Close()
		r.page = nil
	}
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	return err
}
