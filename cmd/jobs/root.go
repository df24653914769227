package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/coursework-jobs/internal/config"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jobs",
	Short: "jobs runs and controls the coursework background job service",
	Long: `jobs is the command-line interface of the coursework background job service.

The service accepts task requests over HTTP, stores them durably and runs them
on a fixed pool of workers with bounded retries:

  plagiarism_check     compare a submission against its assignment
  bulk_enrollment      enroll a list of students into a course
  grade_notification   tell a student their grade was posted
  assignment_reminders remind students of assignments due soon
  data_cleanup         delete old completed and failed task records

Common workflows:

  Start the API and workers:
    jobs serve

  Apply database migrations:
    jobs migrate up

  Queue a task on a running server:
    jobs enqueue plagiarism_check --params '{"submission_id":"..."}'

  Inspect or cancel it:
    jobs status <task-id>
    jobs cancel <task-id>

Configuration:
  Server settings come from config.yaml or JOBS_* environment variables
  (JOBS_DATABASE_URL, JOBS_REDIS_URL, JOBS_TASK_STORE, ...). Client commands
  use --url or JOBS_URL (default: http://localhost:8080).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "jobs server URL")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}

// loadConfig reads the service configuration and installs the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return cfg, log, nil
}
