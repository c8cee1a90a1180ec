package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGapsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "gaps <profile.json>",
		Short: "Report missing required fields per profile section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				doc, _, err := a.loadProfile(args[0])
				if err != nil {
					return err
				}
				p, err := a.planner()
				if err != nil {
					return err
				}
				gaps := p.AnalyzeGaps(doc)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), gaps)
				}
				rows := make([][]string, 0, len(gaps))
				for _, gap := range gaps {
					missing := strings.Join(gap.MissingFields, ", ")
					if missing == "" {
						missing = "-"
					}
					rows = append(rows, []string{gap.Section, formatFloat(gap.Completeness), missing})
				}
				return renderTable(cmd.OutOrStdout(), []string{"Section", "Completeness", "Missing"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newSuggestCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		limit  int
		noHist bool
	)
	cmd := &cobra.Command{
		Use:   "suggest <profile.json>",
		Short: "Rank modules that would fill the profile's gaps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				doc, subject, err := a.loadProfile(args[0])
				if err != nil {
					return err
				}
				p, err := a.planner()
				if err != nil {
					return err
				}
				var history []string
				if !noHist {
					history, err = a.history(cmd.Context(), subject)
					if err != nil {
						return fmt.Errorf("read run history: %w", err)
					}
				}
				suggestions := p.Suggest(doc, history)
				if limit > 0 && len(suggestions) > limit {
					suggestions = suggestions[:limit]
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), suggestions)
				}
				if len(suggestions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No suggestions: every required field is present.")
					return nil
				}
				rows := make([][]string, 0, len(suggestions))
				for i, s := range suggestions {
					rows = append(rows, []string{fmt.Sprint(i + 1), s.Module, s.Section, formatFloat(s.Score)})
				}
				return renderTable(cmd.OutOrStdout(), []string{"#", "Module", "Section", "Score"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n suggestions")
	cmd.Flags().BoolVar(&noHist, "ignore-history", false, "do not exclude modules that already ran")
	return cmd
}
