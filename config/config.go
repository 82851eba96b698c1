package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP   string
	ListenAddrPort string

	// Browser / capture settings
	BrowserPath       string // path to Chrome/Chromium, autodetected when empty
	DeviceScale       int    // fixed device pixel scale applied at capture time
	ViewportWidth     int    // fallback viewport for direct URL captures
	ViewportHeight    int
	RenderTimeoutSecs int // deadline covering module load through completion
	SettleMillis      int // layout settle delay after a viewport resize
	RenderConcurrency int // max simultaneous renders against the browser
	ImageFormat       string

	// Watch folder settings
	WatchPath     string
	OutputPath    string
	WatchInterval int  // minutes
	WatchDelete   bool // delete source files after a successful render

	// Database settings
	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string `json:"-"`
	DatabaseDbname   string
	DatabaseSslmode  string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Browser configuration
	browserPath := getEnv("BROWSER_PATH", "")
	if browserPath == "" {
		detected, err := FindBrowser()
		if err != nil {
			logger.Warn("No Chrome/Chromium browser found, browser rendering disabled", "error", err)
		} else {
			logger.Info("Browser autodetected", "path", detected)
			browserPath = detected
		}
	} else if err := checkExecutable(browserPath, logger); err != nil {
		logger.Warn("Configured browser path not found, falling back to autodetection", "path", browserPath)
		if detected, derr := FindBrowser(); derr == nil {
			browserPath = detected
		} else {
			browserPath = ""
		}
	}
	serverConfigLive.BrowserPath = browserPath

	// Capture configuration. Device scale of 2 is policy for output
	// sharpness; renderer modules never influence it.
	serverConfigLive.DeviceScale = getEnvInt("DEVICE_SCALE", 2)
	serverConfigLive.ViewportWidth = getEnvInt("VIEWPORT_WIDTH", 1280)
	serverConfigLive.ViewportHeight = getEnvInt("VIEWPORT_HEIGHT", 960)
	serverConfigLive.RenderTimeoutSecs = getEnvInt("RENDER_TIMEOUT_SECONDS", 30)
	serverConfigLive.SettleMillis = getEnvInt("SETTLE_MILLIS", 150)
	serverConfigLive.RenderConcurrency = getEnvInt("RENDER_CONCURRENCY", 4)
	serverConfigLive.ImageFormat = getEnv("IMAGE_FORMAT", "png")

	// Watch folder configuration
	watchDir := filepath.ToSlash(getEnv("WATCH_PATH", ""))
	if watchDir != "" {
		watchDirAbs, err := filepath.Abs(watchDir)
		if err != nil {
			logger.Error("Failed creating absolute path for watch directory", "error", err)
		}
		serverConfigLive.WatchPath = watchDirAbs
	}
	outputDir := filepath.ToSlash(getEnv("OUTPUT_PATH", "screenshots"))
	outputDirAbs, err := filepath.Abs(outputDir)
	if err != nil {
		logger.Error("Failed creating absolute path for output directory", "error", err)
	}
	serverConfigLive.OutputPath = outputDirAbs
	serverConfigLive.WatchInterval = getEnvInt("WATCH_INTERVAL", 10)
	serverConfigLive.WatchDelete = getEnvBool("WATCH_DELETE", false)

	// Database configuration
	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "sqlite")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "goshot")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "goshot")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")

	logger.Info("Configuration loaded",
		"port", serverConfigLive.ListenAddrPort,
		"deviceScale", serverConfigLive.DeviceScale,
		"database", serverConfigLive.DatabaseType)

	fmt.Println("\n========================================")
	fmt.Println("   goshot - Document Screenshot Server")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "goshot.log"))
	fmt.Println("Initializing...")

	return serverConfigLive, logger
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "goshot.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}

// FindBrowser locates an installed Chrome/Chromium binary on the PATH
func FindBrowser() (string, error) {
	browsers := []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "chrome"}
	for _, browser := range browsers {
		if path, err := exec.LookPath(browser); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no suitable browser found")
}

// checkExecutable verifies that an executable exists at the given path
func checkExecutable(browserPath string, logger *slog.Logger) error {
	_, err := os.Stat(browserPath)
	if err != nil {
		return err
	}
	logger.Debug("Browser executable found", "path", browserPath)
	return nil
}
