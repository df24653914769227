package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/phrazzld/coursework-jobs/internal/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var enqueueParams string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [task_type]",
	Short: "Queue a task on a running server",
	Long: `Submit a task request. Parameters are given as a JSON object and are
validated by the server against the task type before the task is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := json.RawMessage(enqueueParams)
		if !json.Valid(params) {
			return errors.New("--params must be a valid JSON object")
		}

		resp, err := newTaskClient(viper.GetString("url")).Create(cmd.Context(), args[0], params)
		if err != nil {
			return err
		}
		cmd.Printf("Task %s accepted (%s)\n", resp.TaskID, resp.Status)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [task_id]",
	Short: "Show the current state of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newTaskClient(viper.GetString("url")).Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTask(cmd, resp)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [task_id]",
	Short: "Cancel a task that has not started yet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newTaskClient(viper.GetString("url")).Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTask(cmd, resp)
		return nil
	},
}

func printTask(cmd *cobra.Command, t *api.TaskResponse) {
	cmd.Println("Task Details")
	cmd.Println("──────────────────────────────")
	cmd.Printf("ID:          %s\n", t.ID)
	cmd.Printf("Type:        %s\n", t.TaskType)
	cmd.Printf("Status:      %s\n", t.Status)
	cmd.Printf("Retries:     %d/%d\n", t.Retries, t.MaxRetries)
	cmd.Printf("Created:     %s\n", t.CreatedAt.Format(time.RFC3339))
	cmd.Printf("Updated:     %s\n", t.UpdatedAt.Format(time.RFC3339))
	if t.StartedAt != nil {
		cmd.Printf("Started:     %s\n", t.StartedAt.Format(time.RFC3339))
	}
	if t.NextRunAt != nil {
		cmd.Printf("Next run:    %s\n", t.NextRunAt.Format(time.RFC3339))
	}
	if t.Result != "" {
		cmd.Printf("Result:      %s\n", t.Result)
	}
}

func init() {
	enqueueCmd.Flags().StringVarP(&enqueueParams, "params", "p", "{}", "task parameters as a JSON object")

	rootCmd.AddCommand(enqueueCmd, statusCmd, cancelCmd)
}
