package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tankobon/internal/api"
	"tankobon/internal/source"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the source for documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withClient(func(client *api.Client) error {
				results, err := client.Search(cmd.Context(), query)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, results)
				}
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{
						r.SourceDocumentID,
						r.Title,
						strings.Join(r.Artists, ", "),
						strconv.Itoa(r.Fragments),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
					Headers: []string{"ID", "Title", "Artists", "Pages"},
					Rows:    rows,
					Aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
				}))
				return nil
			})
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|url>",
		Short: "Show the catalogued document for a source record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := source.ExtractID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				detail, err := client.Document(cmd.Context(), id)
				if err != nil {
					if api.IsNotFound(err) {
						return fmt.Errorf("source document %s is not catalogued", id)
					}
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, detail)
				}
				out := cmd.OutOrStdout()
				doc := detail.Document
				fmt.Fprintf(out, "Document %d: %s\n", doc.ID, doc.Title)
				fmt.Fprintf(out, "  Authors: %s\n", strings.Join(doc.Authors, ", "))
				fmt.Fprintf(out, "  Path:    %s\n", doc.Path)
				fmt.Fprintf(out, "  Status:  %s\n", doc.Status)
				if len(detail.Tags) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(detail.Tags))
				for _, tag := range detail.Tags {
					rows = append(rows, []string{tag.Alias, tag.Name, strconv.Itoa(tag.GroupID)})
				}
				fmt.Fprintln(out, renderTable(tableSpec{
					Headers: []string{"Alias", "Name", "Group"},
					Rows:    rows,
					Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight},
				}))
				return nil
			})
		},
	}
}

func newURLsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "urls <id|url>",
		Short: "Print resolved fragment download URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := source.ExtractID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				urls, err := client.DownloadURLs(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, urls)
				}
				names := sortedKeys(urls)
				out := cmd.OutOrStdout()
				for _, name := range names {
					fmt.Fprintf(out, "%s\t%s\n", name, urls[name])
				}
				return nil
			})
		},
	}
}

func newOrphansCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List documents registered without an archived file",
		Long: `List catalog documents still in the pending state.

A pending document was registered but its archive file never reached the
archive directory, usually because the daemon stopped mid-commit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				docs, err := client.Pending(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if docs == nil {
						docs = []api.Document{}
					}
					return writeJSON(cmd, docs)
				}
				out := cmd.OutOrStdout()
				if len(docs) == 0 {
					fmt.Fprintln(out, "No pending documents")
					return nil
				}
				rows := make([][]string, 0, len(docs))
				for _, d := range docs {
					rows = append(rows, []string{strconv.FormatInt(d.ID, 10), d.Title, d.Path, d.CreatedAt})
				}
				fmt.Fprintln(out, renderTable(tableSpec{
					Headers: []string{"ID", "Title", "Path", "Created"},
					Rows:    rows,
					Aligns:  []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				}))
				return nil
			})
		},
	}
}
