// Package orchestrator runs one collection pass over a profile: it extracts
// objectives and targets, selects modules, resolves their dependencies,
// executes them and writes the orchestration record back into the profile.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
	"github.com/kingrea/intel-lattice/internal/target"
	"github.com/kingrea/intel-lattice/internal/workflow"
	"github.com/kingrea/intel-lattice/internal/workflow/engine"
	"github.com/kingrea/intel-lattice/internal/workflow/resolver"
	"github.com/kingrea/intel-lattice/internal/workflow/selector"
)

// Orchestrator wires the extractor, selector, resolver and engine together.
type Orchestrator struct {
	catalog  workflow.Catalog
	selector *selector.Selector
	resolver *resolver.Resolver
	engine   *engine.Engine
	store    engine.RunStore
	logger   *zap.Logger
	clock    func() time.Time
	newID    func() string
}

type settings struct {
	logger        *zap.Logger
	store         engine.RunStore
	clock         func() time.Time
	newID         func() string
	engineOptions []engine.Option
}

// Option customizes the orchestrator.
type Option func(*settings)

// WithLogger sets the logger shared by the orchestrator, resolver and engine.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithRunStore persists every orchestration record.
func WithRunStore(store engine.RunStore) Option {
	return func(s *settings) {
		s.store = store
	}
}

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) {
		s.clock = clock
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *settings) {
		s.newID = newID
	}
}

// WithEngineOptions forwards options to the execution engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *settings) {
		s.engineOptions = append(s.engineOptions, opts...)
	}
}

// New validates the catalog and builds an orchestrator. Planning errors are
// the only errors it reports.
func New(catalog workflow.Catalog, registry *module.Registry, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("orchestrator: module registry is required")
	}
	normalized, err := catalog.Normalized()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	cfg := settings{
		clock: time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	sel, err := selector.New(normalized)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	engineOpts := append([]engine.Option{
		engine.WithLogger(cfg.logger.Named("engine")),
		engine.WithClock(cfg.clock),
	}, cfg.engineOptions...)
	eng, err := engine.New(normalized, registry, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return &Orchestrator{
		catalog:  normalized,
		selector: sel,
		resolver: resolver.New(normalized, cfg.logger.Named("resolver")),
		engine:   eng,
		store:    cfg.store,
		logger:   cfg.logger,
		clock:    cfg.clock,
		newID:    cfg.newID,
	}, nil
}

// Catalog returns the normalized catalog.
func (o *Orchestrator) Catalog() workflow.Catalog {
	return o.catalog.Clone()
}

// RunPlan is the planning half of a run, computed without executing modules.
type RunPlan struct {
	Objectives []string
	Targets    target.Targets
	Selected   []string
	Rules      []string
	Resolution resolver.Plan
}

// Plan extracts objectives and targets, selects modules and resolves the
// execution order. It does not modify the profile.
func (o *Orchestrator) Plan(doc profile.Profile) RunPlan {
	objectives, targets := target.ExtractWithDefault(doc, o.catalog.DefaultObjective)
	selected := o.resolver.PriorityOrder(o.selector.Select(objectives, targets))
	return RunPlan{
		Objectives: objectives,
		Targets:    targets,
		Selected:   selected,
		Rules:      o.selector.Matched(objectives, targets),
		Resolution: o.resolver.Resolve(selected),
	}
}

// Run executes one orchestration pass over doc and stores the record under
// the profile's orchestration section. subject keys the run history; an
// empty subject skips persistence. History failures are logged only.
func (o *Orchestrator) Run(ctx context.Context, subject string, doc profile.Profile) (engine.OrchestrationRecord, error) {
	if doc == nil {
		return engine.OrchestrationRecord{}, errors.New("orchestrator: profile is required")
	}
	started := o.clock()
	runID := o.newID()
	log := o.logger.With(zap.String("run_id", runID))

	plan := o.Plan(doc)
	log.Info("orchestration planned",
		zap.Strings("objectives", plan.Objectives),
		zap.Strings("rules", plan.Rules),
		zap.Strings("selected", plan.Selected),
		zap.Strings("order", plan.Resolution.Order),
	)

	results := o.engine.Run(ctx, plan.Resolution.Order, doc)
	completed := o.clock()
	record := engine.BuildRecord(runID, plan.Objectives, plan.Selected, plan.Resolution.Order, results, plan.Resolution.Diagnostics(), started, completed)
	doc[profile.SectionOrchestration] = record.ProfileSection()

	log.Info("orchestration finished",
		zap.Int("completed", record.Count(engine.StatusCompleted)),
		zap.Int("failed", record.Count(engine.StatusFailed)),
		zap.Int("skipped", record.Count(engine.StatusSkipped)),
		zap.Int("unavailable", record.Count(engine.StatusUnavailable)),
		zap.Float64("duration_s", record.State.DurationS),
	)

	if o.store != nil && subject != "" {
		if err := o.store.SaveRun(ctx, subject, record); err != nil {
			log.Warn("run history not saved", zap.String("subject", subject), zap.Error(err))
		}
	}
	return record, nil
}

// History returns the modules that completed in earlier runs for subject.
func (o *Orchestrator) History(ctx context.Context, subject string) ([]string, error) {
	if o.store == nil || subject == "" {
		return []string{}, nil
	}
	return o.store.ExecutedModules(ctx, subject)
}

// RunModule executes a single module, bypassing selection and dependency
// resolution, and returns its execution record.
func (o *Orchestrator) RunModule(ctx context.Context, id string, doc profile.Profile) engine.ExecutionRecord {
	return o.engine.Run(ctx, []string{id}, doc)[0]
}
