package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

type statusResponse struct {
	Files      map[string]int `json:"files"`
	Receipts   map[string]int `json:"receipts"`
	Reminders  map[string]int `json:"reminders"`
	OpenTasks  int            `json:"open_tasks"`
	TotalTasks int            `json:"total_tasks"`
	Watch      string         `json:"watch"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon pipeline and scheduler counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status statusResponse
			if err := ctx.getJSON(cmd.Context(), "/status", &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderTable(
				[]column{{name: "Section"}, {name: "State"}, {name: "Count", numeric: true}},
				statusRows(status, colorize),
			))
			fmt.Fprintf(out, "Folder watch: %s\n", colorWatch(status.Watch, colorize))
			fmt.Fprintf(out, "Open tasks:   %d of %d\n", status.OpenTasks, status.TotalTasks)
			return nil
		},
	}
}

func statusRows(status statusResponse, colorize bool) [][]string {
	var rows [][]string
	rows = append(rows, countRows("files", status.Files, colorize)...)
	rows = append(rows, countRows("receipts", status.Receipts, colorize)...)
	rows = append(rows, countRows("reminders", status.Reminders, colorize)...)
	if len(rows) == 0 {
		rows = append(rows, []string{"-", "empty", "0"})
	}
	return rows
}

func countRows(section string, counts map[string]int, colorize bool) [][]string {
	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, state)
	}
	sort.Strings(states)

	rows := make([][]string, 0, len(states))
	for _, state := range states {
		rows = append(rows, []string{section, colorState(state, colorize), fmt.Sprintf("%d", counts[state])})
	}
	return rows
}

func colorState(state string, colorize bool) string {
	if !colorize {
		return state
	}
	switch strings.ToLower(state) {
	case "done", "sent":
		return ansiGreen + state + ansiReset
	case "failed":
		return ansiRed + state + ansiReset
	case "processing", "posting", "sending", "scheduled":
		return ansiYellow + state + ansiReset
	default:
		return state
	}
}

func colorWatch(state string, colorize bool) string {
	if !colorize {
		return state
	}
	switch state {
	case "active":
		return ansiGreen + state + ansiReset
	case "disabled":
		return state
	default:
		return ansiYellow + state + ansiReset
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
