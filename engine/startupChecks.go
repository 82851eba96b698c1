package engine

import (
	"fmt"
	"os"

	"github.com/drummonds/goshot/config"
	"github.com/drummonds/goshot/render"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	serverHandler.browserChecks()
	serverHandler.moduleChecks()
	if err := outputDirectoryChecks(serverHandler.ServerConfig); err != nil {
		return err
	}
	if err := watchDirectoryChecks(serverHandler.ServerConfig); err != nil {
		return err
	}
	return nil
}

// browserChecks reports whether browser rendering is live. A missing browser
// is not fatal, pdf still renders through the native fallback.
func (serverHandler *ServerHandler) browserChecks() {
	if serverHandler.ServerConfig.BrowserPath == "" {
		Logger.Warn("No browser configured, only pdf will render (native fallback)")
		return
	}

	browserInfo, err := os.Stat(serverHandler.ServerConfig.BrowserPath)
	if err != nil {
		Logger.Warn("Browser executable not found, browser rendering will be disabled",
			"path", serverHandler.ServerConfig.BrowserPath, "error", err)
		return
	}
	if browserInfo.IsDir() {
		Logger.Warn("Browser path is a directory, not an executable",
			"path", serverHandler.ServerConfig.BrowserPath)
		return
	}
	Logger.Info("Browser executable found and validated", "path", serverHandler.ServerConfig.BrowserPath)
}

// moduleChecks verifies every registered renderer module extracted cleanly.
func (serverHandler *ServerHandler) moduleChecks() {
	if serverHandler.Registry == nil {
		return
	}
	tags := render.ModuleTags()
	for _, tag := range tags {
		if _, err := serverHandler.Registry.ModuleURL(tag); err != nil {
			Logger.Error("Renderer module failed to resolve", "tag", tag, "error", err)
		}
	}
	Logger.Info("Renderer modules checked", "count", len(tags))
}

// outputDirectoryChecks ensures the output directory exists
func outputDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.OutputPath == "" {
		Logger.Warn("Output path not configured")
		return nil
	}

	outputInfo, err := os.Stat(serverConfig.OutputPath)
	if err != nil {
		if os.IsNotExist(err) {
			Logger.Info("Creating output directory", "path", serverConfig.OutputPath)
			err = os.MkdirAll(serverConfig.OutputPath, 0755)
			if err != nil {
				Logger.Error("Failed to create output directory", "path", serverConfig.OutputPath, "error", err)
				return err
			}
			return nil
		}
		Logger.Error("Error checking output directory", "path", serverConfig.OutputPath, "error", err)
		return err
	}

	if !outputInfo.IsDir() {
		Logger.Error("Output path exists but is not a directory", "path", serverConfig.OutputPath)
		return fmt.Errorf("output path is not a directory: %s", serverConfig.OutputPath)
	}
	Logger.Info("Output directory exists", "path", serverConfig.OutputPath)
	return nil
}

// watchDirectoryChecks ensures the watch directory exists when configured
func watchDirectoryChecks(serverConfig config.ServerConfig) error {
	if serverConfig.WatchPath == "" {
		return nil
	}

	watchInfo, err := os.Stat(serverConfig.WatchPath)
	if err != nil {
		if os.IsNotExist(err) {
			Logger.Info("Creating watch directory", "path", serverConfig.WatchPath)
			err = os.MkdirAll(serverConfig.WatchPath, 0755)
			if err != nil {
				Logger.Error("Failed to create watch directory", "path", serverConfig.WatchPath, "error", err)
				return err
			}
			return nil
		}
		Logger.Error("Error checking watch directory", "path", serverConfig.WatchPath, "error", err)
		return err
	}

	if !watchInfo.IsDir() {
		Logger.Error("Watch path exists but is not a directory", "path", serverConfig.WatchPath)
		return fmt.Errorf("watch path is not a directory: %s", serverConfig.WatchPath)
	}
	Logger.Info("Watch directory exists", "path", serverConfig.WatchPath)
	return nil
}
