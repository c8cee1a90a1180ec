package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/config"
	"github.com/kingrea/intel-lattice/internal/logging"
	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/modules"
	"github.com/kingrea/intel-lattice/internal/orchestrator"
	"github.com/kingrea/intel-lattice/internal/planner"
	"github.com/kingrea/intel-lattice/internal/profile"
	"github.com/kingrea/intel-lattice/internal/schema"
	"github.com/kingrea/intel-lattice/internal/store"
	"github.com/kingrea/intel-lattice/internal/workflow"
	"github.com/kingrea/intel-lattice/internal/workflow/engine"
)

// app holds everything a command needs for one workspace.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	schema   *schema.Schema
	catalog  workflow.Catalog
	registry *module.Registry
}

func newApp(opts *rootOptions) (*app, error) {
	projectDir := opts.projectDir
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		projectDir = wd
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	logOpts := []logging.Option{logging.WithLevel(cfg.LogLevel())}
	if opts.verbose {
		logOpts = append(logOpts, logging.WithConsole(os.Stderr), logging.WithLevel("debug"))
	}
	log, err := logging.New(cfg.ProjectDir, logOpts...)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, registry: module.NewRegistry()}
	if err := a.load(); err != nil {
		_ = log.Close()
		return nil, err
	}
	modules.RegisterBuiltins(a.registry)
	return a, nil
}

func (a *app) load() error {
	var err error
	if path := a.cfg.SchemaPath(); path != "" {
		a.schema, err = schema.Load(path)
	} else {
		a.schema, err = schema.Default()
	}
	if err != nil {
		return err
	}
	if path := a.cfg.CatalogPath(); path != "" {
		a.catalog, err = workflow.LoadCatalogFile(path)
	} else {
		a.catalog, err = workflow.DefaultCatalog()
	}
	return err
}

func (a *app) Close() error {
	return a.log.Close()
}

func (a *app) logger() *zap.Logger {
	return a.log.Logger
}

func (a *app) planner() (*planner.Planner, error) {
	return planner.New(a.schema, a.catalog.SectionModules(), a.logger().Named("planner"))
}

func (a *app) openHistory() (engine.RunStore, error) {
	return store.OpenRunStore(a.cfg.HistoryDriver(), a.cfg.HistoryPath())
}

// moduleConfig layers workspace defaults, config.yaml settings and overrides.
func (a *app) moduleConfig(id string, overrides module.Config) module.Config {
	cfg := module.Config{}
	if id == "Recon-ng" {
		cfg["workspace_dir"] = a.cfg.ReconWorkspaceDir()
	}
	cfg = cfg.Merge(a.cfg.ModuleConfig(id))
	return cfg.Merge(overrides)
}

func (a *app) engineOptions(overrides map[string]module.Config) []engine.Option {
	opts := []engine.Option{
		engine.WithSchema(a.schema),
		engine.WithEnv(module.Env{
			Logger:     a.logger().Named("module"),
			HTTPClient: &http.Client{Timeout: a.cfg.HTTPTimeout()},
		}),
	}
	for _, id := range a.catalog.ModuleIDs() {
		opts = append(opts, engine.WithModuleConfig(id, a.moduleConfig(id, overrides[id])))
	}
	return opts
}

func (a *app) orchestrator(history engine.RunStore, extra ...engine.Option) (*orchestrator.Orchestrator, error) {
	engineOpts := append(a.engineOptions(nil), extra...)
	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger().Named("orchestrator")),
		orchestrator.WithEngineOptions(engineOpts...),
	}
	if history != nil {
		opts = append(opts, orchestrator.WithRunStore(history))
	}
	return orchestrator.New(a.catalog, a.registry, opts...)
}

// history returns the modules already completed for subject.
func (a *app) history(ctx context.Context, subject string) ([]string, error) {
	runs, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	defer runs.Close()
	return runs.ExecutedModules(ctx, subject)
}

// loadProfile resolves path against the workspace and returns the document
// with its history subject.
func (a *app) loadProfile(path string) (profile.Profile, string, error) {
	resolved := a.resolve(path)
	doc, err := profile.Load(resolved)
	if err != nil {
		return nil, "", err
	}
	return doc, resolved, nil
}

func (a *app) resolve(path string) string {
	trimmed := strings.TrimSpace(path)
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	if _, err := os.Stat(trimmed); err == nil {
		if abs, err := filepath.Abs(trimmed); err == nil {
			return abs
		}
	}
	return filepath.Join(a.cfg.ProjectDir, trimmed)
}

// withApp opens the workspace for the duration of fn.
func withApp(opts *rootOptions, fn func(*app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
