package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		dbh, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer dbh.Close()
		slog.Info("schema ready", slog.String("driver", cfg.DBDriver))
		return nil
	},
}
