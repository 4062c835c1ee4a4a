package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tankobon/internal/api"
	"tankobon/internal/progress"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var clearEntry bool

	cmd := &cobra.Command{
		Use:   "status [label]",
		Short: "Show acquisition progress",
		Long: `Show progress for every tracked job, or for a single job label.

With --clear the named entry is removed from the daemon's status table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearEntry && len(args) == 0 {
				return fmt.Errorf("--clear requires a job label")
			}
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					label := args[0]
					if clearEntry {
						if err := client.ClearStatus(cmd.Context(), label); err != nil {
							return err
						}
						fmt.Fprintf(out, "Cleared %s\n", label)
						return nil
					}
					entry, err := client.StatusEntry(cmd.Context(), label)
					if err != nil {
						return err
					}
					if ctx.JSONMode() {
						return writeJSON(cmd, entry)
					}
					fmt.Fprintln(out, renderStatusTable(map[string]progress.Entry{label: *entry}, shouldColorize(out)))
					return nil
				}

				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, status)
				}
				if status.RoutingVersion != "" {
					fmt.Fprintf(out, "Routing version: %s\n", status.RoutingVersion)
				}
				if len(status.Tasks) == 0 {
					fmt.Fprintln(out, "No tracked jobs")
					return nil
				}
				fmt.Fprintln(out, renderStatusTable(status.Tasks, shouldColorize(out)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearEntry, "clear", false, "Remove the named status entry")
	return cmd
}

func renderStatusTable(tasks map[string]progress.Entry, colorize bool) string {
	labels := make([]string, 0, len(tasks))
	for label := range tasks {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		entry := tasks[label]
		updated := "-"
		if !entry.UpdatedAt.IsZero() {
			updated = humanize.Time(entry.UpdatedAt)
		}
		rows = append(rows, []string{
			label,
			colorState(entry.State, colorize),
			humanize.FtoaWithDigits(entry.Percent, 2) + "%",
			entry.Message,
			updated,
		})
	}
	return renderTable(tableSpec{
		Headers: []string{"Label", "State", "Progress", "Message", "Updated"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	})
}
