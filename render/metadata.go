// Package render drives a headless browser to turn document files into
// raster screenshots. A per-format module runs inside the page, decodes the
// injected payload, and resolves a completion promise with its rendered
// geometry; the driver then captures an image sized exactly to that
// geometry.
package render

import (
	"errors"
	"fmt"

	"github.com/drummonds/goshot/format"
)

var (
	// ErrNoModule means the tag resolved but the registry has no renderer
	// module for it.
	ErrNoModule = errors.New("no renderer module for format")

	// ErrRenderFailure wraps module-side or capture-side failures. Modules
	// are contractually required to absorb decode errors into best-effort
	// metadata; an escaped exception still maps here.
	ErrRenderFailure = errors.New("render failed")

	// ErrCaptureTimeout means the module's completion promise did not
	// resolve within the render deadline.
	ErrCaptureTimeout = errors.New("capture timed out")

	// ErrBrowserUnavailable means no Chrome/Chromium binary is configured
	// or installed.
	ErrBrowserUnavailable = errors.New("browser unavailable")
)

// Request describes one render. It is owned by the driver for the duration
// of that render and never shared between concurrent renders.
type Request struct {
	Payload []byte     // raw file bytes; for the URL tag, the destination address
	Tag     format.Tag // canonical format tag from the resolver
	Page    int        // 1-indexed page/sheet/slide selector, clamped by the module
	// Width/Height override the fallback viewport used for direct URL
	// captures. Zero means the configured default.
	Width  int
	Height int
}

// Metadata is the result object a renderer module resolves its completion
// promise with. Width and Height are CSS-pixel content dimensions, not yet
// multiplied by the device scale. ClipX/ClipY are present only when the
// module cannot guarantee its content starts at the page origin.
type Metadata struct {
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	PageCount  int      `json:"pageCount"`
	PageNumber int      `json:"pageNumber"`
	// Scale documents the internal quality level the module rendered at.
	// Informational only; it never influences driver-side sizing.
	Scale float64  `json:"scale"`
	ClipX *float64 `json:"clipX,omitempty"`
	ClipY *float64 `json:"clipY,omitempty"`
}

// Validate checks the contract invariants on module-reported metadata.
func (m Metadata) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: non-positive dimensions %gx%g", ErrRenderFailure, m.Width, m.Height)
	}
	if m.PageCount < 1 {
		return fmt.Errorf("%w: pageCount %d", ErrRenderFailure, m.PageCount)
	}
	if m.PageNumber < 1 || m.PageNumber > m.PageCount {
		return fmt.Errorf("%w: pageNumber %d outside [1,%d]", ErrRenderFailure, m.PageNumber, m.PageCount)
	}
	if (m.ClipX == nil) != (m.ClipY == nil) {
		return fmt.Errorf("%w: clipX and clipY must be reported together", ErrRenderFailure)
	}
	return nil
}

// HasClip reports whether the module asked for clip-based capture.
func (m Metadata) HasClip() bool {
	return m.ClipX != nil && m.ClipY != nil
}

// Result is the outcome of one render: encoded image bytes plus the realized
// pixel dimensions (CSS dimensions times the device scale). It is not
// persisted by this package.
type Result struct {
	Image  []byte
	Width  int
	Height int
	Tag    format.Tag
	Meta   Metadata
}
