package main

import (
	"os"

	"github.com/spf13/cobra"
)

// @title AidlY Insights & Notifications API
// @version 1.0.0
// @description Metrics aggregation, report engine and notification dispatcher for the AidlY helpdesk.
// @BasePath /api/v1
// @schemes http https

func main() {
	rootCmd := &cobra.Command{
		Use:   "aidly",
		Short: "AidlY insights and notifications service",
		Long:  `aidly hosts the helpdesk metrics aggregator, the report engine and the notification dispatcher, together with the background jobs that drive them.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newAggregateCommand(),
		newDigestCommand(),
		newWatchCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
