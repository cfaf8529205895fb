// Command server runs the generation engine's HTTP API.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pathforge/pathforge-api/internal/config"
	"github.com/pathforge/pathforge-api/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	cfg, log, err := initializeApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}

	if *migrateCmd != "" {
		if err := handleMigrations(cfg, log, *migrateCmd); err != nil {
			log.Error("migration failed",
				slog.String("command", *migrateCmd),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	app, err := newApplication(cfg, log)
	if err != nil {
		log.Error("application setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// initializeApp loads configuration and sets up the process-wide logger.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel))
	return cfg, log, nil
}
