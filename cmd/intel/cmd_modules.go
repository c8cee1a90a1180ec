package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
	"github.com/kingrea/intel-lattice/internal/workflow/engine"
)

func newModulesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List catalogued modules and whether an implementation is registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				rows := make([][]string, 0, len(a.catalog.Modules))
				for _, entry := range a.catalog.Modules {
					status := "registered"
					if _, ok := a.registry.Lookup(entry.ID); !ok {
						status = "unavailable"
					}
					deps := strings.Join(a.catalog.Dependencies(entry.ID), ", ")
					if deps == "" {
						deps = "-"
					}
					rows = append(rows, []string{entry.ID, entry.Section, deps, status})
				}
				return renderTable(cmd.OutOrStdout(), []string{"Module", "Section", "Depends on", "Status"}, rows)
			})
		},
	}
}

func newModuleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Work with a single module",
	}
	cmd.AddCommand(newModuleRunCmd(opts))
	return cmd
}

func newModuleRunCmd(opts *rootOptions) *cobra.Command {
	var (
		configFile string
		save       bool
		asJSON     bool
	)
	sets := keyValueFlag{}
	cmd := &cobra.Command{
		Use:   "run <module-id> <profile.json>",
		Short: "Run one module against a profile, ignoring selection and dependencies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				id := strings.TrimSpace(args[0])
				overrides, err := buildModuleConfig(configFile, sets)
				if err != nil {
					return fmt.Errorf("load config overrides: %w", err)
				}
				doc, subject, err := a.loadProfile(args[1])
				if err != nil {
					return err
				}
				orch, err := a.orchestrator(nil, a.engineOptionsFor(id, overrides)...)
				if err != nil {
					return err
				}
				record := orch.RunModule(cmd.Context(), id, doc)
				if save && record.Status == engine.StatusCompleted {
					if err := profile.Save(subject, doc); err != nil {
						return fmt.Errorf("save profile: %w", err)
					}
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), record)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %s\n", record.Module, record.Status)
				fmt.Fprintln(out, record.Summary)
				if len(record.OutputKeys) > 0 {
					fmt.Fprintf(out, "Sections written: %s\n", strings.Join(record.OutputKeys, ", "))
				}
				if record.Status == engine.StatusFailed {
					return fmt.Errorf("module %s failed", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&configFile, "config-file", "", "YAML or JSON file with module config overrides")
	cmd.Flags().Var(&sets, "set", "module config override (key=value, repeatable)")
	cmd.Flags().BoolVar(&save, "save", false, "write the updated profile back when the module completes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the execution record as JSON")
	return cmd
}

// engineOptionsFor returns the override for one module on top of the
// workspace defaults. Later WithModuleConfig options win.
func (a *app) engineOptionsFor(id string, overrides module.Config) []engine.Option {
	if len(overrides) == 0 {
		return nil
	}
	return []engine.Option{engine.WithModuleConfig(id, a.moduleConfig(id, overrides))}
}

type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(*kv))
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("override key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = val
	return nil
}

func (kv *keyValueFlag) Type() string {
	return "key=value"
}

func buildModuleConfig(configFile string, overrides keyValueFlag) (module.Config, error) {
	var cfg module.Config
	if path := strings.TrimSpace(configFile); path != "" {
		fileCfg, err := readModuleConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if len(overrides) > 0 {
		if cfg == nil {
			cfg = module.Config{}
		}
		for key, value := range overrides {
			cfg[key] = value
		}
	}
	if len(cfg) == 0 {
		return nil, nil
	}
	return cfg, nil
}

func readModuleConfigFile(path string) (module.Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open config file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("config file %s is empty", path)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return module.Config(raw), nil
}
