// Package engine ties the pieces together: it resolves formats, records
// jobs, runs captures through the browser driver (or the native fallback),
// and encodes the final image.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/oklog/ulid/v2"

	"github.com/drummonds/goshot/database"
	"github.com/drummonds/goshot/format"
	"github.com/drummonds/goshot/probe"
	"github.com/drummonds/goshot/render"
)

// RenderOutput is the engine-level result: the encoded image plus the job
// bookkeeping the API and watch folder report on.
type RenderOutput struct {
	Image     []byte
	ImageType string // realized output codec
	Width     int    // pixel dimensions
	Height    int
	Tag       format.Tag
	PageCount int
	JobID     ulid.ULID
}

// RenderFile runs the full pipeline for one input: detect format, record a
// job, capture, encode. The job row always ends completed or failed; the
// error return carries the sentinel taxonomy for the caller to map.
func (serverHandler *ServerHandler) RenderFile(ctx context.Context, inputName string, data []byte, imageType string, page int) (output *RenderOutput, err error) {
	var job *database.RenderJob
	// Recover so one bad document cannot crash the server; the panic still
	// surfaces to the caller as a failed render, never as a nil success.
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered while rendering document", "inputName", inputName, "panic", r)
			output = nil
			err = fmt.Errorf("%w: panic: %v", render.ErrRenderFailure, r)
			serverHandler.failJob(job, err)
		}
	}()

	if page < 1 {
		page = 1
	}
	imageType = normalizeImageType(imageType, serverHandler.ServerConfig.ImageFormat)

	tag, err := format.DetectInput(inputName, data)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve format for %s: %w", inputName, err)
	}

	// Host-side probe so a clamped page selector is visible in the logs
	// before the browser runs. Advisory only, modules clamp for real.
	if count, ok, probeErr := probe.NativeUnitCount(tag, data); ok {
		if probeErr != nil {
			Logger.Warn("Native unit probe failed", "inputName", inputName, "tag", tag, "error", probeErr)
		} else if page > count {
			Logger.Warn("Requested page exceeds document, will be clamped",
				"inputName", inputName, "requested", page, "pages", count)
		}
	}

	job, err = serverHandler.createJob(inputName, tag, imageType, page)
	if err != nil {
		return nil, err
	}

	result, err := serverHandler.capture(ctx, render.Request{
		Payload: data,
		Tag:     tag,
		Page:    page,
	})
	if err != nil {
		serverHandler.failJob(job, err)
		return nil, err
	}

	image, realizedType, err := encodeImage(result.Image, imageType)
	if err != nil {
		err = fmt.Errorf("%w: encoding %s output: %v", render.ErrRenderFailure, imageType, err)
		serverHandler.failJob(job, err)
		return nil, err
	}

	serverHandler.completeJob(job, result)

	output = &RenderOutput{
		Image:     image,
		ImageType: realizedType,
		Width:     result.Width,
		Height:    result.Height,
		Tag:       tag,
		PageCount: result.Meta.PageCount,
	}
	if job != nil {
		output.JobID = job.ID
	}
	return output, nil
}

// capture picks the capture backend. The browser driver is the normal path;
// a missing browser degrades to the native rasterizer for pdf only.
func (serverHandler *ServerHandler) capture(ctx context.Context, req render.Request) (*render.Result, error) {
	if serverHandler.Driver != nil {
		return serverHandler.Driver.Capture(ctx, req)
	}
	if req.Tag == format.PDF && serverHandler.Rasterizer != nil {
		Logger.Info("No browser available, rendering PDF with native rasterizer", "page", req.Page)
		return serverHandler.rasterize(req)
	}
	return nil, fmt.Errorf("%w: %s rendering requires a browser", render.ErrBrowserUnavailable, req.Tag)
}

// rasterize is the browserless pdf path. It mirrors the driver contract:
// page clamping, pixel dims at the device scale, png bytes out.
func (serverHandler *ServerHandler) rasterize(req render.Request) (*render.Result, error) {
	scale := serverHandler.ServerConfig.DeviceScale
	if scale < 1 {
		scale = 2
	}

	count, err := serverHandler.Rasterizer.PageCount(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", render.ErrRenderFailure, err)
	}
	page := render.ClampPage(req.Page, count)

	img, err := serverHandler.Rasterizer.RenderPage(req.Payload, page, scale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", render.ErrRenderFailure, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", render.ErrRenderFailure, err)
	}

	bounds := img.Bounds()
	return &render.Result{
		Image:  buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Tag:    req.Tag,
		Meta: render.Metadata{
			Width:      float64(bounds.Dx() / scale),
			Height:     float64(bounds.Dy() / scale),
			PageCount:  count,
			PageNumber: page,
			Scale:      float64(scale),
		},
	}, nil
}

// normalizeImageType validates the requested output codec, falling back to
// the configured default.
func normalizeImageType(imageType, configured string) string {
	switch imageType {
	case "png", "jpeg", "webp":
		return imageType
	case "jpg":
		return "jpeg"
	case "":
		if configured != "" {
			return configured
		}
		return "png"
	default:
		Logger.Warn("Unknown image format requested, using png", "imageType", imageType)
		return "png"
	}
}

// encodeImage converts the driver's png bytes into the requested codec.
// webp has no Go encoder in the stack, so it is emitted as png, matching
// the screenshot capture default.
func encodeImage(pngBytes []byte, imageType string) ([]byte, string, error) {
	switch imageType {
	case "", "png":
		return pngBytes, "png", nil
	case "webp":
		Logger.Warn("webp encoding unavailable, emitting png")
		return pngBytes, "png", nil
	case "jpeg":
		img, err := imaging.Decode(bytes.NewReader(pngBytes))
		if err != nil {
			return nil, "", err
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "jpeg", nil
	default:
		return nil, "", fmt.Errorf("unsupported image format: %s", imageType)
	}
}

// ImageMIME returns the Content-Type for an output codec.
func ImageMIME(imageType string) string {
	switch imageType {
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// Job bookkeeping helpers. The repository is optional (the CLI runs without
// one), so every call is nil-guarded and persistence errors never fail the
// render itself.

func (serverHandler *ServerHandler) createJob(inputName string, tag format.Tag, imageType string, page int) (*database.RenderJob, error) {
	if serverHandler.DB == nil {
		return nil, nil
	}
	job, err := serverHandler.DB.CreateJob(inputName, string(tag), imageType, page)
	if err != nil {
		Logger.Error("Failed to create render job", "inputName", inputName, "error", err)
		return nil, nil
	}
	if err := serverHandler.DB.MarkJobRunning(job.ID); err != nil {
		Logger.Error("Failed to mark job running", "jobID", job.ID, "error", err)
	}
	return job, nil
}

func (serverHandler *ServerHandler) completeJob(job *database.RenderJob, result *render.Result) {
	if serverHandler.DB == nil || job == nil {
		return
	}
	if err := serverHandler.DB.CompleteJob(job.ID, result.Width, result.Height, result.Meta.PageCount); err != nil {
		Logger.Error("Failed to mark job complete", "jobID", job.ID, "error", err)
	}
}

func (serverHandler *ServerHandler) failJob(job *database.RenderJob, renderErr error) {
	if serverHandler.DB == nil || job == nil {
		return
	}
	if err := serverHandler.DB.FailJob(job.ID, renderErr.Error()); err != nil {
		Logger.Error("Failed to mark job failed", "jobID", job.ID, "error", err)
	}
}

// UserMessage maps the error taxonomy onto the short messages shown at the
// API and CLI boundary.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, format.ErrUnknownFormat):
		return "Unsupported format"
	case errors.Is(err, render.ErrNoModule):
		return "No renderer for this format"
	case errors.Is(err, render.ErrCaptureTimeout):
		return "Render timed out"
	case errors.Is(err, render.ErrBrowserUnavailable):
		return "No browser available for rendering"
	case errors.Is(err, render.ErrRenderFailure):
		return "Render failed"
	default:
		return "Internal error"
	}
}
