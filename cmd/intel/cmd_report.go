package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/kingrea/intel-lattice/internal/report"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var (
		outDir string
		render bool
	)
	cmd := &cobra.Command{
		Use:   "report <profile.json>",
		Short: "Write JSON and Markdown reports for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				doc, subject, err := a.loadProfile(args[0])
				if err != nil {
					return err
				}
				dir := a.cfg.ReportsDir()
				if outDir != "" {
					dir = a.resolve(outDir)
				}
				paths, err := buildReport(cmd, a, subject, doc, dir)
				if err != nil {
					return err
				}
				if render {
					return printMarkdown(cmd.OutOrStdout(), paths.Markdown)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "report directory (defaults to reports.dir)")
	cmd.Flags().BoolVar(&render, "print", false, "render the Markdown report in the terminal")
	return cmd
}

// printMarkdown renders the report body without its front matter.
func printMarkdown(w io.Writer, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	_, body, err := report.ParseFrontMatter(content)
	if err != nil {
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := renderer.Render(string(body))
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
