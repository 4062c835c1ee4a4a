package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tankobon/internal/api"
	"tankobon/internal/source"
)

func newMissingTagsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "missing-tags <id|url>",
		Short: "List tags of a source document the catalog does not know",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := source.ExtractID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				missing, err := client.MissingTags(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if missing == nil {
						missing = []api.MissingTag{}
					}
					return writeJSON(cmd, missing)
				}
				out := cmd.OutOrStdout()
				if len(missing) == 0 {
					fmt.Fprintln(out, "No missing tags")
					return nil
				}
				rows := make([][]string, 0, len(missing))
				for _, tag := range missing {
					group := "-"
					if tag.GroupID != nil {
						group = strconv.Itoa(*tag.GroupID)
					}
					rows = append(rows, []string{tag.Name, group})
				}
				fmt.Fprintln(out, renderTable(tableSpec{
					Headers: []string{"Alias", "Suggested group"},
					Rows:    rows,
					Aligns:  []columnAlignment{alignLeft, alignRight},
				}))
				return nil
			})
		},
	}
}

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List catalog tag groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				groups, err := client.TagGroups(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, groups)
				}
				rows := make([][]string, 0, len(groups))
				for _, g := range groups {
					rows = append(rows, []string{strconv.Itoa(g.ID), g.Name})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
					Headers: []string{"ID", "Name"},
					Rows:    rows,
					Aligns:  []columnAlignment{alignRight, alignLeft},
				}))
				return nil
			})
		},
	}
}
