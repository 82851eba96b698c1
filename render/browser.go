package render

import (
	"context"
	"log/slog"

	"github.com/chromedp/chromedp"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// newAllocator starts the shared headless browser allocator. Every render
// gets its own isolated tab off this one process; the allocator is the only
// state shared between concurrent renders.
func newAllocator(browserPath string) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(browserPath),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.Flag("disable-dev-shm-usage", true),
		// Renderer modules are local file:// pages that decode injected
		// payloads; they never need network access except for the URL tag
		// and CDN decoder bundles.
		chromedp.Flag("allow-file-access-from-files", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	return chromedp.NewExecAllocator(context.Background(), opts...)
}
