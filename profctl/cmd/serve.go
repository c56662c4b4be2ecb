package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sarchlab/sessionprof/profiling"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the profiling monitor.",
	Long: "`serve` starts the profiling monitor and samples the resource " +
		"usage of the process. A session that is still running when the " +
		"server stops is finished and saved.",
	Run: func(cmd *cobra.Command, _ []string) {
		settings, err := loadSettings()
		if err != nil {
			log.Fatalf("Error loading settings: %v", err)
		}

		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			settings.MonitorPort = port
		}

		service := profiling.MakeBuilder().
			WithSettings(settings).
			Build()

		// Terminate saves the running session and then closes the store.
		atexit.Register(func() {
			summary, finished, err := service.Terminate()
			if err != nil {
				errColor.Fprintf(os.Stderr, "Failed to save session: %v\n", err)
				return
			}

			if finished {
				okColor.Fprintf(os.Stderr, "Saved running session %s\n",
					summary.Name)
			}
		})

		ctx, stop := signal.NotifyContext(
			context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = service.Run(ctx)
		if err != nil {
			errColor.Fprintf(os.Stderr, "Server stopped: %v\n", err)
			atexit.Exit(1)
		}

		fmt.Fprintln(os.Stderr, "Server stopped.")
		atexit.Exit(0)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0,
		"port of the monitor, overriding the settings")
}
