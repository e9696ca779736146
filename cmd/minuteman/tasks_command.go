package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type taskListing struct {
	Tasks []struct {
		DraftID     string `json:"draft_id"`
		Index       int    `json:"index"`
		Description string `json:"description"`
		Assignee    string `json:"assignee"`
		Due         string `json:"due"`
	} `json:"tasks"`
}

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect action items",
	}
	tasksCmd.AddCommand(newTasksListCommand(ctx))
	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open action items across approved drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var listing taskListing
			if err := ctx.getJSON(cmd.Context(), "/tasks", &listing); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(listing.Tasks) == 0 {
				fmt.Fprintln(out, "No open tasks.")
				return nil
			}

			rows := make([][]string, 0, len(listing.Tasks))
			for _, task := range listing.Tasks {
				assignee := task.Assignee
				if assignee == "" {
					assignee = "-"
				}
				due := task.Due
				if due == "" {
					due = "-"
				}
				rows = append(rows, []string{
					fmt.Sprintf("%s:%d", task.DraftID, task.Index),
					task.Description,
					assignee,
					due,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{{name: "Task"}, {name: "Description"}, {name: "Assignee"}, {name: "Due"}},
				rows,
			))
			return nil
		},
	}
}
