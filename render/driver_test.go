package render

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"os/exec"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/drummonds/goshot/format"
)

// getBrowser finds an available Chrome/Chromium for integration tests
func getBrowser() (string, error) {
	browsers := []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"}
	for _, browser := range browsers {
		if path, err := exec.LookPath(browser); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no suitable browser found")
}

// The GPX module is fully self-contained (no CDN decoder), which makes it
// the right format for driver integration tests.
const testGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="goshot-test">
  <trk>
    <name>Morning loop</name>
    <trkseg>
      <trkpt lat="51.5074" lon="-0.1278"></trkpt>
      <trkpt lat="51.5080" lon="-0.1290"></trkpt>
      <trkpt lat="51.5091" lon="-0.1265"></trkpt>
      <trkpt lat="51.5075" lon="-0.1250"></trkpt>
    </trkseg>
  </trk>
</gpx>`

func newTestDriver(t *testing.T) (*Driver, *Registry) {
	t.Helper()

	browserPath, err := getBrowser()
	if err != nil {
		t.Skip("No Chrome/Chromium browser found, skipping driver test")
	}

	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	driver, err := NewDriver(registry, Options{
		BrowserPath: browserPath,
		DeviceScale: 2,
		Timeout:     30 * time.Second,
	})
	if err != nil {
		registry.Close()
		t.Fatalf("Failed to create driver: %v", err)
	}

	t.Cleanup(func() {
		driver.Close()
		registry.Close()
	})
	return driver, registry
}

func TestDriverCapture_GPX(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	driver, _ := newTestDriver(t)

	result, err := driver.Capture(context.Background(), Request{
		Payload: []byte(testGPX),
		Tag:     format.GPX,
		Page:    1,
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	// Fixed 960x720 frame at device scale 2
	if result.Width != 1920 || result.Height != 1440 {
		t.Errorf("Result dims = %dx%d, want 1920x1440", result.Width, result.Height)
	}
	if result.Meta.PageCount != 1 || result.Meta.PageNumber != 1 {
		t.Errorf("Pagination = %d/%d, want 1/1", result.Meta.PageNumber, result.Meta.PageCount)
	}

	img, err := png.Decode(bytes.NewReader(result.Image))
	if err != nil {
		t.Fatalf("Output is not valid PNG: %v", err)
	}
	if img.Bounds().Dx() != result.Width || img.Bounds().Dy() != result.Height {
		t.Errorf("PNG dims %dx%d don't match reported %dx%d",
			img.Bounds().Dx(), img.Bounds().Dy(), result.Width, result.Height)
	}
}

// A page selector beyond the native unit count clamps rather than errors.
func TestDriverCapture_PageClamped(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	driver, _ := newTestDriver(t)

	result, err := driver.Capture(context.Background(), Request{
		Payload: []byte(testGPX),
		Tag:     format.GPX,
		Page:    99,
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if result.Meta.PageNumber != 1 {
		t.Errorf("PageNumber = %d, want clamped to 1", result.Meta.PageNumber)
	}
}

// A module whose decode throws must still resolve the completion promise
// with best-effort metadata; the capture proceeds instead of failing.
func TestDriverCapture_ModuleErrorAbsorbed(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	driver, _ := newTestDriver(t)

	result, err := driver.Capture(context.Background(), Request{
		Payload: []byte("this is not xml at all"),
		Tag:     format.GPX,
		Page:    1,
	})
	if err != nil {
		t.Fatalf("Capture failed despite the never-reject contract: %v", err)
	}
	if len(result.Image) == 0 {
		t.Error("Expected a diagnostic screenshot, got empty image")
	}
}

// requireCDN skips tests whose renderer module loads its decoder bundle
// from a CDN.
func requireCDN(t *testing.T) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Head("https://cdn.jsdelivr.net")
	if err != nil {
		t.Skip("CDN unreachable, skipping test that needs a hosted decoder")
	}
	resp.Body.Close()
}

// The last pseudo-page of a flow document is usually shorter than the
// viewport. Its slice must contain the document tail, not a region clamped
// short of it. Fixed-height blocks make the geometry deterministic: content
// is 2660 CSS px tall (20px padding + 2460 spacer + 160 marker + 20px
// padding), so page 3 covers 2560..2660 and starts inside the red marker.
func TestDriverCapture_MarkdownLastPageShowsTail(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	requireCDN(t)
	driver, _ := newTestDriver(t)

	markdown := `<div style="height:2460px"></div>
<div style="background:#ff0000;height:160px"></div>`

	result, err := driver.Capture(context.Background(), Request{
		Payload: []byte(markdown),
		Tag:     format.Markdown,
		Page:    3,
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if result.Meta.PageCount != 3 || result.Meta.PageNumber != 3 {
		t.Fatalf("Pagination = %d/%d, want 3/3", result.Meta.PageNumber, result.Meta.PageCount)
	}
	// Last slice is 100 CSS px tall at device scale 2
	if result.Width != 1920 || result.Height != 200 {
		t.Errorf("Result dims = %dx%d, want 1920x200", result.Width, result.Height)
	}

	img, err := png.Decode(bytes.NewReader(result.Image))
	if err != nil {
		t.Fatalf("Output is not valid PNG: %v", err)
	}
	// The marker occupies the top 80 CSS px of the slice; sample inside it.
	r, g, b, _ := img.At(img.Bounds().Dx()/2, 80).RGBA()
	if r>>8 < 200 || g>>8 > 100 || b>>8 > 100 {
		t.Errorf("Pixel in document tail = #%02x%02x%02x, want red marker", r>>8, g>>8, b>>8)
	}
}

func TestDriverCapture_URLDirectNavigation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	driver, _ := newTestDriver(t)

	result, err := driver.Capture(context.Background(), Request{
		Payload: []byte("about:blank"),
		Tag:     format.URL,
	})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	// Fixed fallback viewport at device scale 2, no module metadata
	if result.Width != 2560 || result.Height != 1920 {
		t.Errorf("Result dims = %dx%d, want 2560x1920", result.Width, result.Height)
	}
}

func TestDriverCapture_NoModule(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	driver, _ := newTestDriver(t)

	_, err := driver.Capture(context.Background(), Request{
		Payload: []byte("x"),
		Tag:     format.Tag("bogus"),
	})
	if !errors.Is(err, ErrNoModule) {
		t.Errorf("Capture with unregistered tag = %v, want ErrNoModule", err)
	}
}

func TestDriverCapture_Timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	browserPath, err := getBrowser()
	if err != nil {
		t.Skip("No Chrome/Chromium browser found, skipping driver test")
	}

	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	defer registry.Close()

	driver, err := NewDriver(registry, Options{
		BrowserPath: browserPath,
		Timeout:     1 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close()

	_, err = driver.Capture(context.Background(), Request{
		Payload: []byte(testGPX),
		Tag:     format.GPX,
	})
	if !errors.Is(err, ErrCaptureTimeout) {
		t.Errorf("Capture with 1ms deadline = %v, want ErrCaptureTimeout", err)
	}
}

// After any render, success or failure, no page or goroutine may be left
// behind once the driver is closed.
func TestDriverCleanup_NoLeaks(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	browserPath, err := getBrowser()
	if err != nil {
		t.Skip("No Chrome/Chromium browser found, skipping driver test")
	}

	defer leaktest.CheckTimeout(t, 30*time.Second)()

	registry, err := NewRegistry()
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	defer registry.Close()

	driver, err := NewDriver(registry, Options{BrowserPath: browserPath})
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}

	if _, err := driver.Capture(context.Background(), Request{
		Payload: []byte(testGPX),
		Tag:     format.GPX,
	}); err != nil {
		t.Errorf("Capture failed: %v", err)
	}
	// A failed render must clean up just as completely.
	if _, err := driver.Capture(context.Background(), Request{
		Payload: []byte("x"),
		Tag:     format.Tag("bogus"),
	}); !errors.Is(err, ErrNoModule) {
		t.Errorf("Expected ErrNoModule, got %v", err)
	}

	driver.Close()
}
