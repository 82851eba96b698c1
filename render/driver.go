package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/drummonds/goshot/format"
)

// Options configures the capture driver. Zero values fall back to the
// policy defaults.
type Options struct {
	BrowserPath    string
	DeviceScale    int
	FallbackWidth  int // viewport for direct URL captures
	FallbackHeight int
	Timeout        time.Duration // deadline from module load to completion
	Settle         time.Duration // layout settle delay after viewport resize
	Concurrency    int           // max simultaneous tabs
}

func (o *Options) fillDefaults() {
	if o.DeviceScale <= 0 {
		o.DeviceScale = 2
	}
	if o.FallbackWidth <= 0 {
		o.FallbackWidth = 1280
	}
	if o.FallbackHeight <= 0 {
		o.FallbackHeight = 960
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Settle <= 0 {
		o.Settle = 150 * time.Millisecond
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
}

// Driver owns the browser process and executes one capture state machine
// per render: inject inputs, load the module, await its completion promise,
// apply a geometry strategy, screenshot. All page resources are released on
// every exit path.
type Driver struct {
	opts        Options
	registry    *Registry
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sem         chan struct{}
}

// NewDriver acquires the shared browser allocator. Failure to locate a
// browser binary is reported as ErrBrowserUnavailable and is not retried at
// this layer.
func NewDriver(registry *Registry, opts Options) (*Driver, error) {
	opts.fillDefaults()
	if Logger == nil {
		Logger = slog.Default()
	}
	if opts.BrowserPath == "" {
		return nil, fmt.Errorf("%w: no browser path configured", ErrBrowserUnavailable)
	}
	allocCtx, allocCancel := newAllocator(opts.BrowserPath)
	return &Driver{
		opts:        opts,
		registry:    registry,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sem:         make(chan struct{}, opts.Concurrency),
	}, nil
}

// awaitRenderComplete resolves the module's completion promise. A module
// that never assigned the promise is a contract defect and maps to
// RenderFailure, not a registry miss.
const awaitRenderComplete = `(async () => {
	const done = globalThis.renderComplete;
	if (!done) {
		throw new Error("renderComplete promise not found");
	}
	return await done;
})()`

// Capture runs one render to completion and returns the image bytes plus
// realized pixel dimensions. The request is owned by this call; the tab and
// its context are torn down before it returns, success or failure.
func (d *Driver) Capture(ctx context.Context, req Request) (*Result, error) {
	if req.Page < 1 {
		req.Page = 1
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-d.sem }()

	// One format bypasses the module system entirely: the payload is a
	// destination address and the screenshot uses the fixed viewport.
	if req.Tag == format.URL {
		return d.captureURL(ctx, req)
	}

	moduleURL, err := d.registry.ModuleURL(req.Tag)
	if err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(d.allocCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, d.opts.Timeout)
	defer cancelTimeout()
	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	// The payload and selector must be readable before the module's first
	// statement executes, so they are registered as a pre-navigation
	// script rather than evaluated after load.
	inject := fmt.Sprintf("globalThis.fileBase64 = %q;\nglobalThis.pageNumber = %d;",
		base64.StdEncoding.EncodeToString(req.Payload), req.Page)

	start := time.Now()
	Logger.Debug("Starting render", "tag", req.Tag, "page", req.Page, "payloadBytes", len(req.Payload))

	var meta Metadata
	err = chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(inject).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(PlaceholderWidth, PlaceholderHeight,
			chromedp.EmulateScale(float64(d.opts.DeviceScale))),
		chromedp.Navigate(moduleURL),
		chromedp.Evaluate(awaitRenderComplete, &meta, func(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, d.classify(err, req.Tag)
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	plan := PlanCapture(meta, d.opts.DeviceScale)
	Logger.Debug("Module resolved metadata",
		"tag", req.Tag,
		"width", meta.Width, "height", meta.Height,
		"pageCount", meta.PageCount, "pageNumber", meta.PageNumber,
		"clip", meta.HasClip())

	buf, err := d.screenshot(tabCtx, plan)
	if err != nil {
		return nil, d.classify(err, req.Tag)
	}

	Logger.Info("Render complete",
		"tag", req.Tag,
		"pixelWidth", plan.PixelWidth, "pixelHeight", plan.PixelHeight,
		"duration", time.Since(start))

	return &Result{
		Image:  buf,
		Width:  plan.PixelWidth,
		Height: plan.PixelHeight,
		Tag:    req.Tag,
		Meta:   meta,
	}, nil
}

// screenshot resizes the viewport per the capture plan, waits for layout to
// settle, and takes either a full-viewport or clip-restricted screenshot.
func (d *Driver) screenshot(tabCtx context.Context, plan Plan) ([]byte, error) {
	var buf []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(int64(plan.ViewportWidth), int64(plan.ViewportHeight),
			chromedp.EmulateScale(float64(d.opts.DeviceScale))),
		chromedp.Sleep(d.opts.Settle),
	}
	if plan.Clip == nil {
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
	} else {
		clip := plan.Clip
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{
					X:      clip.X,
					Y:      clip.Y,
					Width:  clip.Width,
					Height: clip.Height,
					Scale:  1,
				}).
				Do(ctx)
			return err
		}))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, err
	}
	return buf, nil
}

// captureURL performs the direct-navigation special case: no module, no
// metadata contract, no resizing. The current viewport is screenshotted
// after the page settles.
func (d *Driver) captureURL(ctx context.Context, req Request) (*Result, error) {
	width := req.Width
	if width <= 0 {
		width = d.opts.FallbackWidth
	}
	height := req.Height
	if height <= 0 {
		height = d.opts.FallbackHeight
	}

	tabCtx, cancel := chromedp.NewContext(d.allocCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, d.opts.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	dest := string(req.Payload)
	Logger.Debug("Starting direct navigation capture", "url", dest, "width", width, "height", height)

	var buf []byte
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(width), int64(height),
			chromedp.EmulateScale(float64(d.opts.DeviceScale))),
		chromedp.Navigate(dest),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// No network-idle event is exposed here; a settle delay after
		// document-ready covers late-arriving assets well enough for a
		// fixed-viewport capture.
		chromedp.Sleep(d.opts.Settle*4),
		chromedp.CaptureScreenshot(&buf),
	)
	if err != nil {
		return nil, d.classify(err, req.Tag)
	}

	return &Result{
		Image:  buf,
		Width:  width * d.opts.DeviceScale,
		Height: height * d.opts.DeviceScale,
		Tag:    req.Tag,
		Meta: Metadata{
			Width:      float64(width),
			Height:     float64(height),
			PageCount:  1,
			PageNumber: 1,
			Scale:      float64(d.opts.DeviceScale),
		},
	}, nil
}

// classify maps low-level chromedp errors onto the driver taxonomy.
func (d *Driver) classify(err error, tag format.Tag) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s render exceeded %s", ErrCaptureTimeout, tag, d.opts.Timeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrRenderFailure, tag, err)
}

// Close releases the shared browser process. In-flight renders are
// cancelled.
func (d *Driver) Close() error {
	d.allocCancel()
	return nil
}
