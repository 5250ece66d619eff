// Package main is the entry point for the libshelf API server.
//
// main stays minimal: load configuration, build the logger, ensure the data
// directory exists and hand over to internal/server. All configuration comes
// from the environment; see internal/config for the variables.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/libshelf/internal/config"
	"github.com/sakif/libshelf/internal/logger"
	"github.com/sakif/libshelf/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No configured logger yet
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(log)

	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			log.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
