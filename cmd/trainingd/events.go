package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-training/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events KEY",
	Short: "Print the recorded transitions for a key (session id or user:scope)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		dbh, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer dbh.Close()
		list, err := events.NewEventRepo(dbh).ListByKey(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	},
}
