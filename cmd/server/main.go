// Package main is the entry point for the todo tracker HTTP server.
//
// MAIN PACKAGE IN GO:
// main should stay minimal. Its job is to:
// 1. Read configuration (TOML file + environment variables)
// 2. Create dependencies (logger)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/todo-tracker/internal/config"
	"github.com/sakif/todo-tracker/internal/logging"
	"github.com/sakif/todo-tracker/internal/server"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanups (log file close)
// still happen; os.Exit skips defers.
func run() int {
	// === 1. READ CONFIGURATION ===
	// Defaults, then the TOML file named by TODO_CONFIG, then env vars.
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return 1
	}

	// === 2. SET UP LOGGING ===
	logger, closeLog, err := logging.New(logging.Options{
		Level: cfg.SlogLevel(),
		File:  cfg.LogFile,
	})
	if err != nil {
		slog.Error("failed to set up logging", slog.String("error", err.Error()))
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	// server.New creates the database directory and applies migrations.
	srv, err := server.New(server.Config{
		Addr:   cfg.Addr(),
		DBPath: cfg.DatabasePath(),
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return 1
	}

	// Start blocks until Ctrl+C, SIGTERM, or a storage failure.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
