package cmd

import (
	"github.com/spf13/cobra"
)

var (
	dbURL    string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "beacon telemetry store inspection tool",
	Long: `Inspect and maintain a beacon telemetry data store: run schema
migrations, list or flush pending ping uploads, and show the persisted
client identity. The library embedded in the host application owns the
store at runtime; this tool is for development and operations.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "sqlite://beacon.db", "data store URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func Execute() error {
	return rootCmd.Execute()
}
