package render

import "math"

// Viewport constants. The placeholder viewport is deliberately small so that
// reflowing formats don't inflate before the module reports real geometry.
// The flow viewport is the logical page used for pseudo-pagination; it must
// match the constants compiled into the module runtime shim.
const (
	PlaceholderWidth  = 800
	PlaceholderHeight = 600
	FlowWidth         = 960
	FlowHeight        = 1280
)

// Plan is the capture decision derived from module metadata: the viewport to
// emulate, the optional clip rectangle, and the final pixel dimensions of
// the output image.
type Plan struct {
	ViewportWidth  int
	ViewportHeight int
	Clip           *ClipRect // nil selects the full-viewport screenshot
	PixelWidth     int
	PixelHeight    int
}

// ClipRect is a CSS-pixel capture rectangle.
type ClipRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// PlanCapture selects a capture strategy from metadata shape alone. Clip
// fields present always take the clip path; absent always takes
// viewport-resize. The device scale multiplies the reported content
// dimensions into final pixels regardless of strategy.
func PlanCapture(meta Metadata, deviceScale int) Plan {
	if meta.HasClip() {
		// Oversize the viewport so the clip region is fully laid out.
		return Plan{
			ViewportWidth:  int(math.Ceil(*meta.ClipX + meta.Width)),
			ViewportHeight: int(math.Ceil(*meta.ClipY + meta.Height)),
			Clip: &ClipRect{
				X:      *meta.ClipX,
				Y:      *meta.ClipY,
				Width:  meta.Width,
				Height: meta.Height,
			},
			PixelWidth:  int(math.Round(meta.Width)) * deviceScale,
			PixelHeight: int(math.Round(meta.Height)) * deviceScale,
		}
	}
	return Plan{
		ViewportWidth:  int(math.Ceil(meta.Width)),
		ViewportHeight: int(math.Ceil(meta.Height)),
		PixelWidth:     int(math.Round(meta.Width)) * deviceScale,
		PixelHeight:    int(math.Round(meta.Height)) * deviceScale,
	}
}

// PageSlice is the derived pagination state for formats with no intrinsic
// page concept. It is recomputed every render, never stored.
type PageSlice struct {
	PageCount    int
	PageNumber   int
	ScrollOffset float64
	PageHeight   float64
}

// Paginate derives page boundaries from total content height and a fixed
// logical viewport height. The requested page is clamped, never an error.
// This is the same arithmetic the module runtime shim executes in-page; the
// Go version is the reference the host validates against.
func Paginate(totalHeight, viewportHeight float64, requested int) PageSlice {
	pageCount := int(math.Ceil(totalHeight / viewportHeight))
	if pageCount < 1 {
		pageCount = 1
	}
	target := ClampPage(requested, pageCount)
	offset := float64(target-1) * viewportHeight
	pageHeight := math.Min(viewportHeight, totalHeight-offset)
	return PageSlice{
		PageCount:    pageCount,
		PageNumber:   target,
		ScrollOffset: offset,
		PageHeight:   pageHeight,
	}
}

// ClampPage clamps a 1-indexed page selector into [1, count]. Both native
// and pseudo-paginated formats clamp identically.
func ClampPage(requested, count int) int {
	if requested < 1 {
		return 1
	}
	if requested > count {
		return count
	}
	return requested
}
