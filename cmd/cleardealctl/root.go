package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/cleardeal/internal/config"
	"github.com/garnizeh/cleardeal/internal/db"
)

var (
	configFile string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:           "cleardealctl",
	Short:         "Administer a ClearDeal database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(deadLettersCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides the configuration)")
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// databasePath resolves the database from --db or the configuration.
func databasePath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return "", fmt.Errorf("reading configuration: %w", err)
	}
	if cfg.DatabasePath == "" {
		return "", fmt.Errorf("no database path configured")
	}
	return cfg.DatabasePath, nil
}

func openDB(ctx context.Context, logger *slog.Logger) (*db.DB, error) {
	path, err := databasePath()
	if err != nil {
		return nil, err
	}
	conn, err := db.New(ctx, path, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return conn, nil
}
