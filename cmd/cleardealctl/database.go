package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	dbfs "github.com/garnizeh/cleardeal/db"
	"github.com/garnizeh/cleardeal/internal/db"
	"github.com/garnizeh/cleardeal/internal/repository/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations and seed the submission schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		conn, err := openDB(cmd.Context(), log)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := db.Migrate(cmd.Context(), conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("database migrated")
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup [destination]",
	Short: "Write a consistent copy of the database (default <db>.bak)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		conn, err := openDB(cmd.Context(), log)
		if err != nil {
			return err
		}
		defer conn.Close()

		src, _ := databasePath()
		dst := src + ".bak"
		if len(args) == 1 {
			dst = args[0]
		}
		// VACUUM INTO refuses to overwrite.
		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove old backup: %w", err)
		}
		if _, err := conn.Exec(cmd.Context(), "VACUUM INTO ?", dst); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		log.Info("database backup completed", "path", dst)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [source]",
	Short: "Replace the database with a backup (default <db>.bak); stop the server first",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		dst, err := databasePath()
		if err != nil {
			return err
		}
		src := dst + ".bak"
		if len(args) == 1 {
			src = args[0]
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		// Stale WAL files would be replayed over the restored copy.
		for _, suffix := range []string{"-wal", "-shm"} {
			if err := os.Remove(dst + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("restore: %w", err)
			}
		}
		log.Info("database restore completed", "from", src, "to", dst)
		return nil
	},
}

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "Print the number of notification jobs that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB(cmd.Context(), newLogger())
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := sqlite.New(conn, nil).CountDeadLetters(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".restore"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
