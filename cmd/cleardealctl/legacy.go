package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/garnizeh/cleardeal/internal/legacy"
	"github.com/garnizeh/cleardeal/internal/repository/sqlite"
)

var importCmd = &cobra.Command{
	Use:   "import <snapshot.json|->",
	Short: "Replace jobs and applications with a browser-storage snapshot",
	Long: `Reads a JSON object holding the clearDealJobs and clearDealApplications
keys. Applications without hasPaidFee are taken as paid and duplicate
(job, freelancer) pairs keep the latest application.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		snap, rep, err := legacy.Parse(r)
		if err != nil {
			return err
		}

		conn, err := openDB(cmd.Context(), log)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := legacy.Import(cmd.Context(), sqlite.New(conn, log), snap); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		log.Info("snapshot imported",
			"jobs", len(snap.Jobs),
			"applications", len(snap.Applications),
			"collapsed", rep.Collapsed,
			"orphans", rep.Orphans,
			"fee_filled", rep.FeeFilled,
		)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [snapshot.json]",
	Short: "Write jobs and applications as a browser-storage snapshot (default stdout)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		conn, err := openDB(cmd.Context(), log)
		if err != nil {
			return err
		}
		defer conn.Close()

		w := cmd.OutOrStdout()
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return legacy.Export(cmd.Context(), sqlite.New(conn, log), w)
	},
}
