package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-training/internal/training"
)

var importCmd = &cobra.Command{
	Use:   "import-catalog FILE",
	Short: "Load courses, modules, lessons and quizzes from a JSON bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		b, err := training.DecodeBundle(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		cfg := loadConfig(cmd)
		dbh, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer dbh.Close()
		if err := training.NewSQLCatalog(dbh).Import(cmd.Context(), b); err != nil {
			return err
		}
		slog.Info("catalog imported",
			slog.Int("courses", len(b.Courses)), slog.Int("modules", len(b.Modules)),
			slog.Int("lessons", len(b.Lessons)), slog.Int("quizzes", len(b.Quizzes)))
		return nil
	},
}
