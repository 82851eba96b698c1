// Package rasterizer renders PDF pages to images without a browser. It is
// the fallback path when no Chrome/Chromium binary is installed; only the
// pdf format has a native fallback.
package rasterizer

import (
	"image"
)

// Renderer defines the interface for native PDF to image conversion
type Renderer interface {
	// PageCount returns the number of pages in a PDF document
	PageCount(data []byte) (int, error)

	// RenderPage converts one 1-indexed page of a PDF document to an image
	// at the given pixel scale (1 = 72 DPI)
	RenderPage(data []byte, pageNumber int, scale int) (image.Image, error)

	// Close cleans up any resources used by the renderer
	Close() error
}

// NewRenderer creates the default MuPDF-based renderer
func NewRenderer() (Renderer, error) {
	return NewFitzRenderer()
}
