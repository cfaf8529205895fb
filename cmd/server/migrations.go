package main

import (
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/pathforge/pathforge-api/internal/config"
	"github.com/pathforge/pathforge-api/internal/platform/postgres"
)

// handleMigrations runs one goose command against the embedded migration
// set and returns.
func handleMigrations(cfg *config.Config, log *slog.Logger, command string) error {
	db, err := setupAppDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(postgres.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	log.Info("running migration command", slog.String("command", command))
	switch command {
	case "up":
		return goose.Up(db, "migrations")
	case "down":
		return goose.Down(db, "migrations")
	case "status":
		return goose.Status(db, "migrations")
	default:
		return fmt.Errorf("unknown migration command %q (expected up, down or status)", command)
	}
}
