package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/sessionprof/datarecording"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or export the sessions recorded in a SQLite store.",
	Long: "`sessions` lists the recorded sessions. " +
		"`sessions --export [ID]` writes the report of a session to stdout.",
	Run: func(cmd *cobra.Command, _ []string) {
		settings, err := loadSettings()
		if err != nil {
			log.Fatalf("Error loading settings: %v", err)
		}

		store, err := datarecording.NewSQLiteStore(settings.SQLitePath)
		if err != nil {
			log.Fatalf("Error opening store: %v", err)
		}
		defer store.Close()

		ctx := context.Background()

		if id, _ := cmd.Flags().GetString("export"); id != "" {
			report, err := store.LoadReport(ctx, id)
			if err != nil {
				log.Fatalf("Error loading session: %v", err)
			}

			if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
				log.Fatalf("Error writing report: %v", err)
			}

			return
		}

		sessions, err := store.ListSessions(ctx)
		if err != nil {
			log.Fatalf("Error listing sessions: %v", err)
		}

		for _, s := range sessions {
			fmt.Printf("%s  %s  %-28s %6d events  %s\n",
				okColor.Sprint(s.ID), s.SavedAt, s.Name, s.NumEvents, s.Path)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().String("export", "", "session to export")
}
