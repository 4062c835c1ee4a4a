package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tankobon/internal/catalog"
	"tankobon/internal/logging"
	"tankobon/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean staged archives",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staged archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			artifacts, err := staging.ListArtifacts(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("list staged archives: %w", err)
			}

			var totalSize int64
			for _, a := range artifacts {
				totalSize += a.Size
			}

			if ctx.JSONMode() {
				if artifacts == nil {
					artifacts = []staging.Artifact{}
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir":      cfg.Paths.StagingDir,
					"artifacts":        artifacts,
					"total_size_bytes": totalSize,
				})
			}

			out := cmd.OutOrStdout()
			if len(artifacts) == 0 {
				fmt.Fprintln(out, "No staged archives")
				return nil
			}

			fmt.Fprintf(out, "Staging directory: %s\n\n", cfg.Paths.StagingDir)
			rows := make([][]string, 0, len(artifacts))
			for _, a := range artifacts {
				rows = append(rows, []string{a.SourceID, humanize.Time(a.ModTime), humanize.IBytes(uint64(a.Size))})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				Headers: []string{"Source ID", "Age", "Size"},
				Rows:    rows,
				Aligns:  []columnAlignment{alignLeft, alignRight, alignRight},
				Footer:  []string{fmt.Sprintf("%d archives", len(artifacts)), "", humanize.IBytes(uint64(totalSize))},
			}))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var archived bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove staged archives",
		Long: `Remove staged archives left behind by interrupted or duplicate jobs.

A staged archive blocks new acquisitions of the same source document until it
is removed. Select what to remove with --older-than, --archived, or both.

--archived removes archives whose source document is already in the catalog,
which is the state a duplicate-content failure leaves behind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 && !archived {
				return fmt.Errorf("choose --older-than, --archived, or both")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := logging.NewNop()

			var result staging.CleanResult
			if olderThan > 0 {
				result = mergeCleanResults(result, staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, olderThan, logger))
			}
			if archived {
				store, err := catalog.Open(cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				systemID := cfg.Source.SystemID
				isArchived := func(ctx context.Context, sourceID string) (bool, error) {
					doc, err := store.DocumentBySource(ctx, systemID, sourceID)
					return doc != nil, err
				}
				result = mergeCleanResults(result, staging.CleanArchived(cmd.Context(), cfg.Paths.StagingDir, isArchived, logger))
			}

			if ctx.JSONMode() {
				return writeStagingCleanJSON(cmd, result)
			}
			return printStagingCleanResult(cmd, result)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove staged archives older than this age (e.g. 24h)")
	cmd.Flags().BoolVar(&archived, "archived", false, "Remove staged archives whose source is already catalogued")

	return cmd
}

func mergeCleanResults(a, b staging.CleanResult) staging.CleanResult {
	a.Removed = append(a.Removed, b.Removed...)
	a.Errors = append(a.Errors, b.Errors...)
	return a
}

func printStagingCleanResult(cmd *cobra.Command, result staging.CleanResult) error {
	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintln(out, "No staged archives to clean")
		return nil
	}
	fmt.Fprintf(out, "Removed %d staged archives", len(result.Removed))
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, ", %d errors\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
		}
		return nil
	}
	fmt.Fprintln(out)
	return nil
}

func writeStagingCleanJSON(cmd *cobra.Command, result staging.CleanResult) error {
	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
	}
	return writeJSON(cmd, map[string]any{
		"removed": len(result.Removed),
		"errors":  errs,
	})
}
