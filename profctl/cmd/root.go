// Package cmd provides the command-line interface of profctl.
package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/sarchlab/sessionprof/config"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFile    string
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	linkColor = color.New(color.FgCyan, color.Underline)
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "profctl",
	Short: "profctl runs and controls profiling sessions.",
	Long: `profctl runs and controls profiling sessions. It can serve the ` +
		`profiling monitor, begin and finish sessions of a running monitor, ` +
		`and list the sessions recorded in a SQLite store.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"TOML file with a [profiler] section")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "",
		"file with PROFILER_* variables")
}

func loadSettings() (config.ReportSettings, error) {
	return config.Load(config.Options{
		TOMLFile: configFile,
		EnvFile:  envFile,
	})
}
