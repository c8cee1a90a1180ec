package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/profile"
	"github.com/kingrea/intel-lattice/internal/report"
	"github.com/kingrea/intel-lattice/internal/tui"
	"github.com/kingrea/intel-lattice/internal/workflow/engine"
)

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan <profile.json>",
		Short: "Show objectives, selected modules and execution order without running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				doc, _, err := a.loadProfile(args[0])
				if err != nil {
					return err
				}
				orch, err := a.orchestrator(nil)
				if err != nil {
					return err
				}
				plan := orch.Plan(doc)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"objectives":      plan.Objectives,
						"rules":           plan.Rules,
						"selected":        plan.Selected,
						"execution_order": plan.Resolution.Order,
						"diagnostics":     plan.Resolution.Diagnostics(),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Objectives: %s\n", strings.Join(plan.Objectives, "; "))
				fmt.Fprintf(out, "Rules: %s\n", orNone(plan.Rules))
				fmt.Fprintf(out, "Selected: %s\n", orNone(plan.Selected))
				fmt.Fprintf(out, "Execution order: %s\n", orNone(plan.Resolution.Order))
				for _, d := range plan.Resolution.Diagnostics() {
					fmt.Fprintf(out, "! %s\n", d)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

type runOptions struct {
	watch   bool
	report  bool
	outPath string
	dryRun  bool
	asJSON  bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <profile.json>",
		Short: "Run one orchestration pass and write the results into the profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				return runOrchestration(cmd, a, args[0], ro)
			})
		},
	}
	cmd.Flags().BoolVarP(&ro.watch, "watch", "w", false, "show live progress in a terminal view")
	cmd.Flags().BoolVar(&ro.report, "report", false, "write JSON and Markdown reports after the run")
	cmd.Flags().StringVarP(&ro.outPath, "out", "o", "", "write the updated profile here instead of in place")
	cmd.Flags().BoolVar(&ro.dryRun, "dry-run", false, "do not write the profile or run history")
	cmd.Flags().BoolVar(&ro.asJSON, "json", false, "print the orchestration record as JSON")
	return cmd
}

func runOrchestration(cmd *cobra.Command, a *app, path string, ro *runOptions) error {
	doc, subject, err := a.loadProfile(path)
	if err != nil {
		return err
	}
	var history engine.RunStore
	if !ro.dryRun {
		history, err = a.openHistory()
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer history.Close()
	}

	var record engine.OrchestrationRecord
	if ro.watch {
		preview, err := a.orchestrator(nil)
		if err != nil {
			return err
		}
		order := preview.Plan(doc).Resolution.Order
		record, err = tui.Run(cmd.Context(), filepath.Base(subject), order, func(ctx context.Context, obs engine.Observer) (engine.OrchestrationRecord, error) {
			orch, err := a.orchestrator(history, engine.WithObserver(obs))
			if err != nil {
				return engine.OrchestrationRecord{}, err
			}
			return orch.Run(ctx, subject, doc)
		})
		if err != nil {
			return err
		}
	} else {
		orch, err := a.orchestrator(history)
		if err != nil {
			return err
		}
		record, err = orch.Run(cmd.Context(), subject, doc)
		if err != nil {
			return err
		}
	}

	if !ro.dryRun {
		target := subject
		if ro.outPath != "" {
			target = a.resolve(ro.outPath)
		}
		if err := profile.Save(target, doc); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		a.logger().Info("profile saved", zap.String("path", target))
	}
	if ro.report {
		if _, err := buildReport(cmd, a, subject, doc, a.cfg.ReportsDir()); err != nil {
			return err
		}
	}
	if ro.asJSON {
		return writeJSON(cmd.OutOrStdout(), record)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tui.RenderSummary(record))
	return nil
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <profile.json>",
		Short: "List earlier runs recorded for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				subject := a.resolve(args[0])
				runs, err := a.openHistory()
				if err != nil {
					return err
				}
				defer runs.Close()
				records, err := runs.Runs(cmd.Context(), subject, limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{
						r.RunID,
						r.State.StartedAt.Format("2006-01-02 15:04:05"),
						fmt.Sprint(r.Count(engine.StatusCompleted)),
						fmt.Sprint(r.Count(engine.StatusFailed)),
						fmt.Sprint(r.Count(engine.StatusSkipped) + r.Count(engine.StatusUnavailable)),
					})
				}
				return renderTable(cmd.OutOrStdout(), []string{"Run", "Started (UTC)", "Completed", "Failed", "Not run"}, rows)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show (0 for all)")
	return cmd
}

func orNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

func buildReport(cmd *cobra.Command, a *app, subject string, doc profile.Profile, dir string) (report.Paths, error) {
	builder, err := report.New(dir, report.WithLogger(a.logger().Named("report")))
	if err != nil {
		return report.Paths{}, err
	}
	paths, err := builder.Build(report.Input{Subject: subject, Profile: doc})
	if err != nil {
		return report.Paths{}, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reports: %s, %s\n", paths.JSON, paths.Markdown)
	return paths, nil
}
