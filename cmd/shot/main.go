// shot renders a single document to a screenshot from the command line.
//
//	shot input.pdf                  # writes input.png
//	shot book.epub out.png -p 3     # third pseudo-page
//	shot https://example.com shot.png -w 1280 -H 960
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	config "github.com/drummonds/goshot/config"
	database "github.com/drummonds/goshot/database"
	engine "github.com/drummonds/goshot/engine"
	"github.com/drummonds/goshot/rasterizer"
	"github.com/drummonds/goshot/render"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	database.Logger = Logger
	engine.Logger = Logger
	render.Logger = Logger
}

func main() {
	imageFormat := flag.String("f", "png", "Output image format (png, jpeg, webp)")
	width := flag.Int("w", 0, "Viewport width for URL captures")
	height := flag.Int("H", 0, "Viewport height for URL captures")
	page := flag.Int("p", 1, "Page/sheet/slide to render (1-indexed)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: shot input [output] [flags]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Renders a document or web page to a screenshot.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	injectGlobals(logger)

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	input := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, input, flag.Arg(1), *imageFormat, *page, *width, *height); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", engine.UserMessage(err))
		Logger.Debug("Render failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, input, output, imageFormat string, page, width, height int) error {
	name, data, err := readInput(input)
	if err != nil {
		return err
	}
	if output == "" {
		output = defaultOutput(input, imageFormat)
	}

	fmt.Printf("Converting %s\n", input)

	registry, err := render.NewRegistry()
	if err != nil {
		return err
	}
	defer registry.Close()

	serverConfig := config.ServerConfig{
		DeviceScale: 2,
		ImageFormat: imageFormat,
	}
	if width > 0 {
		serverConfig.ViewportWidth = width
	}
	if height > 0 {
		serverConfig.ViewportHeight = height
	}

	handler := &engine.ServerHandler{ServerConfig: serverConfig, Registry: registry}
	rendererName := "browser"

	if browserPath, err := config.FindBrowser(); err == nil {
		driver, err := render.NewDriver(registry, render.Options{
			BrowserPath:    browserPath,
			DeviceScale:    serverConfig.DeviceScale,
			FallbackWidth:  width,
			FallbackHeight: height,
			Timeout:        30 * time.Second,
		})
		if err != nil {
			return err
		}
		defer driver.Close()
		handler.Driver = driver
	} else {
		Logger.Warn("No browser found, only pdf will render", "error", err)
		rendererName = "native"
		pdfRenderer, err := rasterizer.NewRenderer()
		if err == nil {
			defer pdfRenderer.Close()
			handler.Rasterizer = pdfRenderer
		}
	}

	result, err := handler.RenderFile(ctx, name, data, imageFormat, page)
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, result.Image, 0644); err != nil {
		return err
	}

	fmt.Printf("Renderer: %s\n", rendererName)
	fmt.Printf("Format: %s\n", result.Tag)
	fmt.Printf("Size: %dx%d\n", result.Width, result.Height)
	fmt.Printf("Saved %s\n", output)
	return nil
}

// readInput returns the name the resolver sees and the payload bytes. URLs
// pass through as their own payload.
func readInput(input string) (string, []byte, error) {
	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return input, []byte(input), nil
	}
	file, err := os.Open(input)
	if err != nil {
		return "", nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(input), data, nil
}

// defaultOutput derives the screenshot path from the input. webp falls back
// to png at encode time, so its extension is png too.
func defaultOutput(input, imageFormat string) string {
	ext := ".png"
	if imageFormat == "jpeg" || imageFormat == "jpg" {
		ext = ".jpg"
	}
	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return "screenshot" + ext
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}
