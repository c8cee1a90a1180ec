package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/intel-lattice/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var historyDriver string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the .intel workspace directory and default config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectDir := opts.projectDir
			if projectDir == "" {
				projectDir = "."
			}
			if err := config.InitIntelDir(projectDir); err != nil {
				return fmt.Errorf("init %s: %w", config.IntelDir, err)
			}
			cfg, err := config.NewConfig(projectDir)
			if err != nil {
				return err
			}
			if historyDriver != "" && historyDriver != cfg.HistoryDriver() {
				if err := cfg.SetHistoryDriver(historyDriver); err != nil {
					return err
				}
				if cfg, err = config.NewConfig(projectDir); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialised %s (history: %s at %s)\n", cfg.IntelProjectDir, cfg.HistoryDriver(), cfg.HistoryPath())
			return nil
		},
	}
	cmd.Flags().StringVar(&historyDriver, "history", "", "run history driver: sqlite or json")
	return cmd
}
