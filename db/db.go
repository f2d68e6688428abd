// Package db embeds the SQL migrations and seed files applied by internal/db.Migrate.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed seed/*.*
var SeedFiles embed.FS
