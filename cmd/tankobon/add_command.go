package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tankobon/internal/api"
	"tankobon/internal/source"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var tagFlags []string

	cmd := &cobra.Command{
		Use:   "add <id|url>",
		Short: "Acquire a document from the source",
		Long: `Submit a source document for acquisition.

Tags the catalog does not know yet must be defined with --tag. Use
"tankobon missing-tags <id>" to list them first. Each definition has the form
alias=group:name, or alias=name to let the daemon pick the group.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := source.ExtractID(args[0])
			if err != nil {
				return err
			}
			defs, err := parseTagFlags(tagFlags)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Add(cmd.Context(), api.AddRequest{SourceDocumentID: id, InexistentTags: defs})
				if err != nil {
					var se *api.StatusError
					if errors.As(err, &se) && len(se.Unresolved) > 0 && !ctx.JSONMode() {
						out := cmd.ErrOrStderr()
						fmt.Fprintln(out, "Unresolved tags:")
						for _, name := range se.Unresolved {
							fmt.Fprintf(out, "  %s\n", name)
						}
					}
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				switch {
				case resp.RedirectURL != "" && resp.Message != "":
					fmt.Fprintf(out, "%s %s (%s)\n", colorState(resp.State, colorize), resp.Message, resp.RedirectURL)
				case resp.RedirectURL != "":
					fmt.Fprintf(out, "%s %s\n", colorState(resp.State, colorize), resp.RedirectURL)
				default:
					fmt.Fprintf(out, "%s %s\n", colorState(resp.State, colorize), resp.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&tagFlags, "tag", "t", nil, "Define a missing tag as alias=group:name (repeatable)")
	return cmd
}

// parseTagFlags turns alias=group:name flags into tag definitions.
func parseTagFlags(values []string) (map[string]api.TagDefinition, error) {
	if len(values) == 0 {
		return nil, nil
	}
	defs := make(map[string]api.TagDefinition, len(values))
	for _, raw := range values {
		alias, rest, ok := strings.Cut(raw, "=")
		alias = strings.TrimSpace(alias)
		if !ok || alias == "" {
			return nil, fmt.Errorf("invalid --tag %q: expected alias=group:name", raw)
		}
		def := api.TagDefinition{Name: strings.TrimSpace(rest)}
		if groupText, name, found := strings.Cut(rest, ":"); found {
			if group, err := strconv.Atoi(strings.TrimSpace(groupText)); err == nil {
				def.GroupID = &group
				def.Name = strings.TrimSpace(name)
			}
		}
		if def.Name == "" {
			return nil, fmt.Errorf("invalid --tag %q: name is empty", raw)
		}
		defs[alias] = def
	}
	return defs, nil
}
