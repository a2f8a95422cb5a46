package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/taskpilot/internal/types"
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd, taskAddCmd, taskDoneCmd, taskRemoveCmd)
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks on a running daemon",
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var tasks []*types.Task
		if err := newAPIClient().do(http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTITLE")
		for _, t := range tasks {
			fmt.Fprintf(w, "%d\t%s\t%s\n", t.ID, t.Status(), t.Title)
		}
		return w.Flush()
	},
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var task types.Task
		body := map[string]any{"title": strings.Join(args, " ")}
		if err := newAPIClient().do(http.MethodPost, "/api/tasks", body, &task); err != nil {
			return fmt.Errorf("add task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %d added: %q\n", task.ID, task.Title)
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		var task types.Task
		body := map[string]any{"isComplete": true}
		if err := newAPIClient().do(http.MethodPut, fmt.Sprintf("/api/tasks/%d", id), body, &task); err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Task %d marked complete.\n", task.ID)
		return nil
	},
}

var taskRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		var resp struct {
			Message string `json:"message"`
		}
		if err := newAPIClient().do(http.MethodDelete, fmt.Sprintf("/api/tasks/%d", id), nil, &resp); err != nil {
			return fmt.Errorf("remove task: %w", err)
		}
		fmt.Fprintln(os.Stdout, resp.Message)
		return nil
	},
}
