package rasterizer

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer implements PDF rendering using go-fitz (requires CGo and MuPDF)
type FitzRenderer struct {
}

// NewFitzRenderer creates a new Fitz-based PDF renderer
func NewFitzRenderer() (*FitzRenderer, error) {
	return &FitzRenderer{}, nil
}

// PageCount returns the number of pages in the document
func (r *FitzRenderer) PageCount(data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	return doc.NumPage(), nil
}

// RenderPage converts one page to an image using go-fitz. The scale
// multiplies the base 72 DPI, matching the device pixel scale the browser
// path applies.
func (r *FitzRenderer) RenderPage(data []byte, pageNumber int, scale int) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageNumber > numPages {
		pageNumber = numPages
	}
	if scale < 1 {
		scale = 1
	}

	// go-fitz pages are 0-indexed
	img, err := doc.ImageDPI(pageNumber-1, float64(72*scale))
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", pageNumber, err)
	}
	return img, nil
}

// Close cleans up resources (no-op for Fitz renderer as doc is closed per-render)
func (r *FitzRenderer) Close() error {
	return nil
}
