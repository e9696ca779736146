package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

type jobListing struct {
	Jobs []struct {
		FileID    string `json:"file_id"`
		Status    string `json:"status"`
		Stage     string `json:"stage"`
		DraftID   string `json:"draft_id"`
		Attempts  int    `json:"attempts"`
		Reason    string `json:"reason"`
		UpdatedAt string `json:"updated_at"`
	} `json:"jobs"`
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and retry pipeline jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processing records",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/jobs"
			if filter := strings.TrimSpace(statusFilter); filter != "" {
				path += "?status=" + url.QueryEscape(filter)
			}

			var listing jobListing
			if err := ctx.getJSON(cmd.Context(), path, &listing); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(listing.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(listing.Jobs))
			for _, job := range listing.Jobs {
				detail := job.Stage
				if job.Reason != "" {
					detail = job.Reason
				}
				rows = append(rows, []string{
					job.FileID,
					colorState(job.Status, shouldColorize(out)),
					fmt.Sprintf("%d", job.Attempts),
					detail,
					job.UpdatedAt,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{
					{name: "File"},
					{name: "Status"},
					{name: "Attempts", numeric: true},
					{name: "Stage / Reason"},
					{name: "Updated"},
				},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (processing, done, failed)")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <file-id>",
		Short: "Re-enqueue a failed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID := strings.TrimSpace(args[0])
			if fileID == "" {
				return fmt.Errorf("file id is required")
			}

			var accepted struct {
				FileID  string `json:"file_id"`
				DraftID string `json:"draft_id"`
			}
			path := "/jobs/" + url.PathEscape(fileID) + "/retry"
			if err := ctx.postJSON(cmd.Context(), path, &accepted); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s (draft %s)\n", accepted.FileID, accepted.DraftID)
			return nil
		},
	}
}
