package engine

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/drummonds/goshot/config"
	"github.com/drummonds/goshot/database"
	"github.com/drummonds/goshot/format"
	"github.com/drummonds/goshot/internal/build"
	"github.com/drummonds/goshot/rasterizer"
	"github.com/drummonds/goshot/render"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Driver       *render.Driver // nil when no browser is installed
	Registry     *render.Registry
	Rasterizer   rasterizer.Renderer // browserless pdf fallback, may be nil
}

// PostRender accepts a multipart upload and returns the rendered screenshot.
// Query/form params: page (1-indexed selector), format (output codec).
func (serverHandler *ServerHandler) PostRender(c echo.Context) error {
	file, fileHeader, err := c.Request().FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Missing file upload",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		Logger.Error("Unable to read uploaded file", "name", fileHeader.Filename, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Unable to read uploaded file",
		})
	}

	page := 1
	if pageParam := c.QueryParam("page"); pageParam != "" {
		if p, err := strconv.Atoi(pageParam); err == nil && p > 0 {
			page = p
		}
	}
	imageType := c.QueryParam("format")

	output, err := serverHandler.RenderFile(c.Request().Context(), fileHeader.Filename, data, imageType, page)
	if err != nil {
		Logger.Error("Render request failed", "name", fileHeader.Filename, "error", err)
		return c.JSON(renderErrorStatus(err), map[string]interface{}{
			"error": UserMessage(err),
		})
	}

	c.Response().Header().Set("X-Render-Width", strconv.Itoa(output.Width))
	c.Response().Header().Set("X-Render-Height", strconv.Itoa(output.Height))
	c.Response().Header().Set("X-Render-Pages", strconv.Itoa(output.PageCount))
	c.Response().Header().Set("X-Render-Format", string(output.Tag))
	c.Response().Header().Set("X-Job-Id", output.JobID.String())
	return c.Blob(http.StatusOK, ImageMIME(output.ImageType), output.Image)
}

// renderErrorStatus maps the error taxonomy onto HTTP status codes.
func renderErrorStatus(err error) int {
	switch {
	case errors.Is(err, format.ErrUnknownFormat), errors.Is(err, render.ErrNoModule):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, render.ErrCaptureTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, render.ErrBrowserUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetFormats lists the format tags the server can render.
func (serverHandler *ServerHandler) GetFormats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"formats": format.Tags(),
	})
}

// GetAboutInfo returns information about the application configuration
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {
	aboutInfo := map[string]interface{}{
		"version":          build.Version,
		"browserPath":      serverHandler.ServerConfig.BrowserPath,
		"browserAvailable": serverHandler.Driver != nil,
		"deviceScale":      serverHandler.ServerConfig.DeviceScale,
		"imageFormat":      serverHandler.ServerConfig.ImageFormat,
		"databaseType":     serverHandler.ServerConfig.DatabaseType,
		"watchPath":        serverHandler.ServerConfig.WatchPath,
		"outputPath":       serverHandler.ServerConfig.OutputPath,
	}
	return c.JSON(http.StatusOK, aboutInfo)
}
