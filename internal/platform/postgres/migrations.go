package postgres

import "embed"

// Migrations holds the goose SQL migrations, embedded so the binary can
// migrate any database it can reach without a checkout on disk.
//
//go:embed migrations/*.sql
var Migrations embed.FS
