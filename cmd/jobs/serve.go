package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the worker pool and the scheduler",
	Long: `Start the task service. Unfinished tasks left by a previous run are
recovered before the workers start. SIGINT or SIGTERM drains in-flight tasks
and shuts down gracefully.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApplication(ctx, cfg, log)
		if err != nil {
			return err
		}
		return app.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
