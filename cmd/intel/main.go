// Command intel plans and runs OSINT collection passes over a profile
// document and reports on the results.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	projectDir string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "intel",
		Short:         "Profile-driven OSINT orchestration",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.projectDir, "project", "C", "", "workspace directory holding .intel/ (defaults to cwd)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "echo log entries to stderr")
	cmd.AddCommand(
		newInitCmd(opts),
		newGapsCmd(opts),
		newSuggestCmd(opts),
		newPlanCmd(opts),
		newRunCmd(opts),
		newHistoryCmd(opts),
		newModulesCmd(opts),
		newModuleCmd(opts),
		newReportCmd(opts),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "intel:", err)
		os.Exit(1)
	}
}
