// Package skiptracer enriches the profile's e-mails, phones and usernames
// against configured people-search and breach sources and scores the
// aggregated signals.
package skiptracer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/profile"
)

const (
	moduleID      = "Skiptracer"
	moduleVersion = "1.0.0"

	defaultTimeout = 20 * time.Second
)

// Option customizes the module.
type Option func(*Module)

// Module aggregates enrichment sources per identifier.
type Module struct {
	*module.Base
	logger      *zap.Logger
	now         func() time.Time
	sources     []Source
	identifier  string
	countryCode string
	timeout     time.Duration
}

// Register adds the module factory to the registry. Sources come from the
// "sources" setting, a list of HTTPSource definitions.
func Register(reg *module.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(module.Spec{
		ID: moduleID,
		Factory: func(env module.Env, cfg module.Config) (module.Module, error) {
			sources, err := DecodeSources(cfg["sources"], env.HTTPClient)
			if err != nil {
				return nil, err
			}
			base := []Option{
				WithLogger(env.Logger),
				WithClock(env.Now),
				WithSources(sources...),
				WithIdentifier(cfg.String("identifier", "")),
				WithDefaultCountryCode(cfg.String("default_country_code", "")),
				WithTimeout(cfg.Duration("timeout", defaultTimeout)),
			}
			return New(append(base, opts...)...), nil
		},
	})
}

// DecodeSources converts a raw configuration list into HTTP sources.
func DecodeSources(raw any, client *http.Client) ([]Source, error) {
	if raw == nil {
		return nil, nil
	}
	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("skiptracer: encode sources: %w", err)
	}
	var defs []HTTPSource
	if err := yaml.Unmarshal(encoded, &defs); err != nil {
		return nil, fmt.Errorf("skiptracer: decode sources: %w", err)
	}
	out := make([]Source, 0, len(defs))
	for idx, def := range defs {
		if def.SourceName == "" || def.URL == "" {
			return nil, fmt.Errorf("skiptracer: sources[%d]: name and url are required", idx)
		}
		def.Client = client
		out = append(out, def)
	}
	return out, nil
}

// New creates the module.
func New(opts ...Option) *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Phone enrichment",
		Description: "Enriches e-mails, phones and usernames through people-search and breach sources.",
		Version:     moduleVersion,
	}
	m := &Module{
		Base:    module.NewBase(info, profile.SectionEnrichment),
		logger:  zap.NewNop(),
		now:     time.Now,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithLogger sets the module logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Module) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithSources appends enrichment sources.
func WithSources(sources ...Source) Option {
	return func(m *Module) {
		m.sources = append(m.sources, sources...)
	}
}

// WithIdentifier adds an explicit identifier ahead of the profile's.
func WithIdentifier(value string) Option {
	return func(m *Module) {
		m.identifier = value
	}
}

// WithDefaultCountryCode sets the calling code applied to national numbers.
func WithDefaultCountryCode(code string) Option {
	return func(m *Module) {
		m.countryCode = code
	}
}

// WithTimeout bounds each source query.
func WithTimeout(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Execute implements module.Module.
func (m *Module) Execute(ctx context.Context, snapshot profile.Profile) (profile.Update, error) {
	identifiers := Collect(
		m.identifier,
		snapshot.Strings(profile.SectionContact, "emails"),
		snapshot.Strings(profile.SectionContact, "phones"),
		snapshot.Strings(profile.SectionContact, "usernames"),
		m.countryCode,
	)
	if len(identifiers) == 0 {
		return nil, errors.New("No valid identifiers found for Skiptracer enrichment.")
	}
	if len(m.sources) == 0 {
		m.logger.Warn("no enrichment sources configured; returning identifiers only")
	}

	var agg summary
	rawResults := []any{}
	idList := make([]any, 0, len(identifiers))
	for _, id := range identifiers {
		idList = append(idList, id.AsMap())
		queried := false
		for _, source := range m.sources {
			if !source.Supports(id.Kind) {
				continue
			}
			payload, err := m.query(ctx, source, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				m.logger.Warn("enrichment source failed", zap.String("source", source.Name()), zap.Error(err))
				continue
			}
			queried = true
			rawResults = append(rawResults, map[string]any{
				"identifier": id.Normalized,
				"type":       id.Kind,
				"payload":    map[string]any{"plugin": source.Name(), "category": source.Category(), "data": payload},
			})
			agg.add(id, source.Name(), source.Category(), payload)
		}
		if !queried {
			rawResults = append(rawResults, map[string]any{"identifier": id.Normalized, "type": id.Kind, "payload": map[string]any{}})
		}
	}

	now := m.now()
	return m.Update(map[string]any{
		"identifiers": idList,
		"sources":     agg.sourceList(),
		"signals": map[string]any{
			"accounts":     dedupeSignals(agg.accounts, "url"),
			"locations":    dedupeSignals(agg.locations, "label"),
			"associations": dedupeSignals(agg.associations, "name"),
		},
		"correlations": dedupeCorrelations(agg.correlations),
		"scores":       agg.scores(now),
		"phones":       phoneList(identifiers),
		"metadata":     map[string]any{"tool": moduleID, "queried_at": now.UTC().Format(time.RFC3339)},
		"raw_results":  rawResults,
	}), nil
}

func (m *Module) query(ctx context.Context, source Source, id Identifier) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return source.Query(ctx, id)
}

func phoneList(identifiers []Identifier) []any {
	out := []any{}
	for _, id := range identifiers {
		if id.Kind == KindPhone {
			out = append(out, id.Normalized)
		}
	}
	return out
}
