package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/drummonds/goshot/format"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// jobRetention is how long finished job rows are kept before the nightly
// cleanup removes them.
const jobRetention = 30 * 24 * time.Hour

// InitializeSchedules starts all the cron jobs
func (serverHandler *ServerHandler) InitializeSchedules() {
	c := cron.New()

	if serverHandler.ServerConfig.WatchPath != "" {
		// Run watch job immediately at startup in a goroutine
		Logger.Info("Running watch folder job at startup", "path", serverHandler.ServerConfig.WatchPath)
		go serverHandler.watchJobFunc()

		var watchJob cron.Job
		watchJob = cron.FuncJob(func() { serverHandler.watchJobFunc() })
		watchJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(watchJob) //ensure we don't kick off another if old one is still running
		c.AddJob(fmt.Sprintf("@every %dm", serverHandler.ServerConfig.WatchInterval), watchJob)
		Logger.Info("Adding watch folder scheduler", "interval_minutes", serverHandler.ServerConfig.WatchInterval)
	} else {
		Logger.Info("No watch path configured, watch folder disabled")
	}

	if serverHandler.DB != nil {
		c.AddJob("@daily", cron.FuncJob(func() { serverHandler.cleanupJobFunc() }))
	}

	c.Start()
}

// watchJobFunc renders every supported file in the watch folder into the
// output folder.
func (serverHandler *ServerHandler) watchJobFunc() {
	// Add panic recovery to prevent entire application crash
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in watch folder job", "panic", r)
		}
	}()

	watchPath := serverHandler.ServerConfig.WatchPath
	Logger.Info("Starting watch folder job", "path", watchPath)

	var watchFiles []string
	err := filepath.Walk(watchPath, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && path != watchPath {
			watchFiles = append(watchFiles, path)
		}
		return nil
	})
	if err != nil {
		Logger.Error("Error reading files in from watch folder", "error", err)
		return
	}

	rendered := 0
	skipped := 0
	errorCount := 0
	for _, filePath := range watchFiles {
		switch serverHandler.watchRenderFile(filePath) {
		case watchRendered:
			rendered++
		case watchSkipped:
			skipped++
		case watchFailed:
			errorCount++
		}
	}
	Logger.Info("Watch folder job finished", "rendered", rendered, "skipped", skipped, "errors", errorCount)
}

type watchOutcome int

const (
	watchRendered watchOutcome = iota
	watchSkipped
	watchFailed
)

// watchRenderFile renders one watched file unless its output is already up
// to date.
func (serverHandler *ServerHandler) watchRenderFile(filePath string) watchOutcome {
	fileName := filepath.Base(filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		Logger.Warn("Unable to read watched file, won't process", "filePath", filePath, "error", err)
		return watchFailed
	}

	if _, err := format.DetectInput(fileName, data); err != nil {
		Logger.Debug("Skipping unsupported file in watch folder", "filePath", filePath)
		return watchSkipped
	}

	outPath := serverHandler.watchOutputPath(fileName)
	if outInfo, err := os.Stat(outPath); err == nil {
		srcInfo, serr := os.Stat(filePath)
		if serr == nil && outInfo.ModTime().After(srcInfo.ModTime()) {
			Logger.Debug("Output is newer than source, skipping", "filePath", filePath)
			return watchSkipped
		}
	}

	output, err := serverHandler.RenderFile(context.Background(), fileName, data, serverHandler.ServerConfig.ImageFormat, 1)
	if err != nil {
		Logger.Error("Failed to render watched file", "filePath", filePath, "error", err)
		return watchFailed
	}

	if err := os.WriteFile(outPath, output.Image, 0644); err != nil {
		Logger.Error("Failed to write rendered output", "outPath", outPath, "error", err)
		return watchFailed
	}
	Logger.Info("Rendered watched file", "filePath", filePath, "outPath", outPath,
		"width", output.Width, "height", output.Height)

	if serverHandler.ServerConfig.WatchDelete {
		if err := os.Remove(filePath); err != nil {
			Logger.Warn("Unable to delete watched source after render", "filePath", filePath, "error", err)
		}
	}
	return watchRendered
}

// watchOutputPath maps a source file name to its screenshot path in the
// output folder.
func (serverHandler *ServerHandler) watchOutputPath(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	ext := serverHandler.ServerConfig.ImageFormat
	if ext != "jpeg" {
		ext = "png" // webp falls back to png at encode time
	}
	return filepath.Join(serverHandler.ServerConfig.OutputPath, base+"."+ext)
}

// cleanupJobFunc prunes old finished job rows.
func (serverHandler *ServerHandler) cleanupJobFunc() {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in job cleanup", "panic", r)
		}
	}()

	deleted, err := serverHandler.DB.DeleteOldJobs(jobRetention)
	if err != nil {
		Logger.Error("Failed to delete old jobs", "error", err)
		return
	}
	if deleted > 0 {
		Logger.Info("Deleted old finished jobs", "count", deleted)
	}
}
