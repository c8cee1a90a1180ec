package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
	"github.com/kingrea/intel-lattice/internal/schema"
	"github.com/kingrea/intel-lattice/internal/workflow"
)

// Engine runs modules sequentially against a shared profile.
type Engine struct {
	catalog  workflow.Catalog
	registry *module.Registry
	schema   *schema.Schema
	env      module.Env
	configs  map[string]module.Config
	observer Observer
	logger   *zap.Logger
	clock    func() time.Time
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSchema enables payload validation of module updates.
func WithSchema(s *schema.Schema) Option {
	return func(e *Engine) {
		e.schema = s
	}
}

// WithEnv sets the environment handed to module factories.
func WithEnv(env module.Env) Option {
	return func(e *Engine) {
		e.env = env
	}
}

// WithModuleConfig layers cfg over a module's registered defaults.
func WithModuleConfig(id string, cfg module.Config) Option {
	return func(e *Engine) {
		if e.configs == nil {
			e.configs = map[string]module.Config{}
		}
		e.configs[id] = e.configs[id].Merge(cfg)
	}
}

// WithObserver registers a progress observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		e.observer = obs
	}
}

// New wires an engine to a normalized catalog and module registry.
func New(catalog workflow.Catalog, registry *module.Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("workflow engine: module registry is required")
	}
	engine := &Engine{
		catalog:  catalog,
		registry: registry,
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.env.Logger == nil {
		engine.env.Logger = engine.logger
	}
	if engine.env.Now == nil {
		engine.env.Now = engine.clock
	}
	return engine, nil
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Run executes order sequentially against doc. Each module sees a private
// snapshot of doc; only a successful, in-bounds update is merged back. Run
// never stops early and returns one record per entry of order.
func (e *Engine) Run(ctx context.Context, order []string, doc profile.Profile) []ExecutionRecord {
	records := make([]ExecutionRecord, 0, len(order))
	for idx, id := range order {
		if e.observer != nil {
			e.observer.ModuleStarted(idx, len(order), id)
		}
		record := e.runModule(ctx, id, doc)
		e.logRecord(record)
		if e.observer != nil {
			e.observer.ModuleFinished(idx, len(order), record)
		}
		records = append(records, record)
	}
	return records
}

func (e *Engine) runModule(ctx context.Context, id string, doc profile.Profile) ExecutionRecord {
	entry, catalogued := e.catalog.Module(id)
	section := SectionUnknown
	if catalogued {
		section = entry.Section
	}
	record := ExecutionRecord{Module: id, ProfileSection: section, OutputKeys: []string{}}

	spec, registered := e.registry.Lookup(id)
	if !registered {
		record.Status = StatusUnavailable
		record.Summary = SummaryNotFound
		return record
	}
	if !catalogued {
		record.Status = StatusUnavailable
		record.Summary = SummaryUndeclared
		return record
	}

	env := e.env.WithLogger(id)
	snapshot := doc.Clone()
	cfg := e.configs[id].Clone()
	if spec.Prepare != nil {
		prepared, err := spec.Prepare(env, snapshot, cfg)
		if err != nil {
			if reason, ok := module.SkipReason(err); ok {
				record.Status = StatusSkipped
				record.Summary = reason
				return record
			}
			return failed(record, err)
		}
		cfg = cfg.Merge(prepared)
	}

	mod, err := spec.Build(env, cfg)
	if err != nil {
		if errors.Is(err, module.ErrUnavailable) {
			record.Status = StatusUnavailable
			record.Summary = err.Error()
			return record
		}
		return failed(record, err)
	}

	update, err := execute(ctx, mod, snapshot)
	if err != nil {
		return failed(record, err)
	}
	if err := e.checkUpdate(entry, update); err != nil {
		return failed(record, err)
	}
	doc.Apply(update)
	record.Status = StatusCompleted
	record.Summary = SummaryCompleted
	record.OutputKeys = update.Keys()
	return record
}

// execute runs the module, converting a panic into an error.
func execute(ctx context.Context, mod module.Module, snapshot profile.Profile) (update profile.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			update = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return mod.Execute(ctx, snapshot)
}

// checkUpdate enforces the module's declared section ownership and, when a
// schema is configured, the property types of each written section.
func (e *Engine) checkUpdate(entry workflow.ModuleEntry, update profile.Update) error {
	var errs []error
	for _, section := range update.Keys() {
		if !entry.Owns(section) {
			errs = append(errs, fmt.Errorf("module %s wrote undeclared section %q", entry.ID, section))
			continue
		}
		payload := update[section]
		if _, ok := payload.(map[string]any); !ok {
			errs = append(errs, fmt.Errorf("module %s section %q payload must be a mapping, got %T", entry.ID, section, payload))
			continue
		}
		if e.schema == nil {
			continue
		}
		if err := e.schema.ValidateSection(section, payload); err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", entry.ID, err))
		}
	}
	return errors.Join(errs...)
}

func failed(record ExecutionRecord, err error) ExecutionRecord {
	record.Status = StatusFailed
	record.Summary = err.Error()
	return record
}

func (e *Engine) logRecord(record ExecutionRecord) {
	fields := []zap.Field{
		zap.String("module", record.Module),
		zap.String("status", string(record.Status)),
		zap.String("section", record.ProfileSection),
	}
	switch record.Status {
	case StatusFailed:
		e.logger.Error("module failed", append(fields, zap.String("summary", record.Summary))...)
	case StatusCompleted:
		e.logger.Info("module completed", append(fields, zap.Strings("output_keys", record.OutputKeys))...)
	default:
		e.logger.Info("module not run", append(fields, zap.String("summary", record.Summary))...)
	}
}
