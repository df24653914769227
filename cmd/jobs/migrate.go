package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/coursework-jobs/internal/platform/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|reset|status|version]",
	Short: "Apply or inspect the task service database migrations",
	Long: `Run goose migrations for the tables this service owns (tasks and
notifications). The command defaults to "up". The coursework tables are
managed by the platform and are only read here.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateReset, postgres.MigrateStatus, postgres.MigrateVersion},
	RunE: func(cmd *cobra.Command, args []string) error {
		command := postgres.MigrateUp
		if len(args) == 1 {
			command = args[0]
		}

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return errors.New("database.url is required to run migrations")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		db, err := postgres.Open(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database connection", "error", closeErr)
			}
		}()

		if err := postgres.Migrate(ctx, db, command, log); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		cmd.Printf("migrate %s: done\n", command)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
