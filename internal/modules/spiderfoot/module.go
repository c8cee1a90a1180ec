// Package spiderfoot runs SpiderFoot scans over the profile's leads and
// folds the discovered e-mails, domains and addresses, with their
// relationships, into the digital section.
package spiderfoot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/modules/runtime"
	"github.com/kingrea/intel-lattice/internal/profile"
)

const (
	moduleID      = "SpiderFoot"
	moduleVersion = "1.0.0"

	defaultBinary      = "sf.py"
	defaultUseCase     = "passive"
	defaultParallelism = 4
	defaultTimeout     = 10 * time.Minute

	maxRelationships = 500
	maxRawEvents     = 200
)

// Entity types as SpiderFoot names them.
const (
	TypeEmail    = "EMAILADDR"
	TypeDomain   = "INTERNET_NAME"
	TypeIP       = "IP_ADDRESS"
	TypeUsername = "USERNAME"
	TypeName     = "HUMAN_NAME"
)

// ErrNoTargets is returned when neither the profile nor the configuration
// names anything to scan.
var ErrNoTargets = errors.New("No valid SpiderFoot targets found. Provide target or profile data.")

var useCases = map[string]struct{}{"all": {}, "footprint": {}, "investigate": {}, "passive": {}}

var targetTypeAliases = map[string]string{
	"domain":     TypeDomain,
	"ip":         TypeIP,
	"ip_address": TypeIP,
	"username":   TypeUsername,
	"email":      TypeEmail,
}

// Option customizes the module.
type Option func(*Module)

// Module scans profile leads with SpiderFoot.
type Module struct {
	*module.Base
	scanner     Scanner
	logger      *zap.Logger
	now         func() time.Time
	targets     []string
	targetType  string
	useCase     string
	modules     []string
	parallelism int
	timeout     time.Duration
}

// Register adds the module factory to the registry. Without an injected
// scanner the factory requires the SpiderFoot executable and reports the
// module unavailable when it is missing.
func Register(reg *module.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(module.Spec{
		ID: moduleID,
		Factory: func(env module.Env, cfg module.Config) (module.Module, error) {
			base := []Option{
				WithLogger(env.Logger),
				WithClock(env.Now),
				WithTargets(cfg.String("target_type", ""), cfg.Strings("targets")...),
				WithUseCase(cfg.String("scan_profile", defaultUseCase)),
				WithModules(cfg.Strings("modules")...),
				WithParallelism(cfg.Int("parallelism", defaultParallelism)),
				WithTimeout(cfg.Duration("timeout", defaultTimeout)),
			}
			m := New(append(base, opts...)...)
			if m.scanner == nil {
				binary := cfg.String("binary", defaultBinary)
				if _, err := exec.LookPath(binary); err != nil {
					return nil, fmt.Errorf("%w: spiderfoot executable %q not found", module.ErrUnavailable, binary)
				}
				m.scanner = CLI{Binary: binary}
			}
			return m, nil
		},
	})
}

// New creates the module. A Scanner must be supplied with WithScanner unless
// the module is built through Register.
func New(opts ...Option) *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Automated footprinting",
		Description: "Runs SpiderFoot scans for each lead and correlates the discovered entities.",
		Version:     moduleVersion,
	}
	m := &Module{
		Base:        module.NewBase(info, profile.SectionDigital),
		logger:      zap.NewNop(),
		now:         time.Now,
		useCase:     defaultUseCase,
		parallelism: defaultParallelism,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithScanner sets the scan backend.
func WithScanner(s Scanner) Option {
	return func(m *Module) {
		if s != nil {
			m.scanner = s
		}
	}
}

// WithLogger sets the module logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source used for scan durations.
func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTargets scans the given values instead of the profile's leads. A
// non-empty targetType applies to every value; otherwise types are detected.
func WithTargets(targetType string, values ...string) Option {
	return func(m *Module) {
		m.targetType = strings.TrimSpace(targetType)
		m.targets = append([]string{}, values...)
	}
}

// WithUseCase selects the SpiderFoot use case run when no module list is set.
// Unknown names fall back to passive.
func WithUseCase(useCase string) Option {
	return func(m *Module) {
		useCase = strings.ToLower(strings.TrimSpace(useCase))
		if _, ok := useCases[useCase]; !ok {
			useCase = defaultUseCase
		}
		m.useCase = useCase
	}
}

// WithModules restricts scans to the named SpiderFoot modules.
func WithModules(modules ...string) Option {
	return func(m *Module) {
		m.modules = runtime.SortedSet(modules)
	}
}

// WithParallelism bounds the number of concurrent scans.
func WithParallelism(n int) Option {
	return func(m *Module) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithTimeout bounds the whole pass.
func WithTimeout(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.timeout = d
		}
	}
}

type scanResult struct {
	target Target
	events []Event
	err    error
}

// Execute implements module.Module.
func (m *Module) Execute(ctx context.Context, snapshot profile.Profile) (profile.Update, error) {
	if m.scanner == nil {
		return nil, errors.New("spiderfoot: no scanner configured")
	}
	targets := m.resolveTargets(snapshot)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	started := m.now()
	results := make([]scanResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for i, t := range targets {
		g.Go(func() error {
			events, err := m.scanner.Scan(gctx, t, m.useCase, m.modules)
			if err != nil {
				m.logger.Warn("scan failed", zap.String("target", t.Value), zap.Error(err))
			}
			results[i] = scanResult{target: t, events: events, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var events []Event
	scanErrors := []any{}
	for _, r := range results {
		if r.err != nil {
			scanErrors = append(scanErrors, map[string]any{"target": r.target.Value, "error": r.err.Error()})
			continue
		}
		events = append(events, r.events...)
	}
	if len(scanErrors) == len(targets) {
		return nil, fmt.Errorf("spiderfoot: every scan failed (%d targets)", len(targets))
	}
	elapsed := m.now().Sub(started).Seconds()
	return m.Update(m.payload(snapshot, targets, events, scanErrors, elapsed)), nil
}

// resolveTargets returns the de-duplicated seeds: configured values, or the
// profile's usernames, e-mails, domains, IPs and aliases in that order.
func (m *Module) resolveTargets(snapshot profile.Profile) []Target {
	values := m.targets
	if len(values) == 0 {
		for _, field := range []struct{ section, name string }{
			{profile.SectionContact, "usernames"},
			{profile.SectionContact, "emails"},
			{profile.SectionDigital, "domains"},
			{profile.SectionDigital, "ips"},
			{profile.SectionIdentity, "aliases"},
		} {
			values = append(values, snapshot.Strings(field.section, field.name)...)
		}
	}
	fixed := ""
	if m.targetType != "" {
		fixed = m.targetType
		if alias, ok := targetTypeAliases[strings.ToLower(fixed)]; ok {
			fixed = alias
		}
	}
	seen := map[string]struct{}{}
	var out []Target
	for _, raw := range values {
		value := strings.Trim(strings.TrimSpace(raw), `"`)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		typ := fixed
		if typ == "" {
			typ = DetectType(value)
		}
		out = append(out, Target{Type: typ, Value: value})
	}
	return out
}

// DetectType classifies a seed value.
func DetectType(value string) string {
	switch {
	case runtime.ValidEmail(value):
		return TypeEmail
	case net.ParseIP(value) != nil:
		return TypeIP
	case runtime.ValidDomain(runtime.NormalizeDomain(value)) && !strings.ContainsAny(value, " \t"):
		return TypeDomain
	case strings.ContainsAny(value, " \t"):
		return TypeName
	default:
		return TypeUsername
	}
}

const (
	entityEmails  = "emails"
	entityDomains = "domains"
	entityIPs     = "ips"
)

var entityTypes = []string{entityEmails, entityDomains, entityIPs}

// classify normalises an event value into one of the entity kinds.
func classify(value string) (kind, normalized string, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", false
	}
	if runtime.ValidEmail(value) {
		return entityEmails, strings.ToLower(value), true
	}
	if ip := net.ParseIP(value); ip != nil {
		return entityIPs, ip.String(), true
	}
	if domain := runtime.NormalizeDomain(value); runtime.ValidDomain(domain) && !strings.ContainsAny(value, " \t") {
		return entityDomains, domain, true
	}
	return "", "", false
}

func entityKey(kind, value string) string {
	return kind + ":" + value
}

func (m *Module) payload(snapshot profile.Profile, targets []Target, events []Event, scanErrors []any, elapsed float64) map[string]any {
	entities := map[string][]string{}
	scores := map[string]map[string][]float64{}
	for _, kind := range entityTypes {
		entities[kind] = []string{}
		scores[kind] = map[string][]float64{}
	}
	seen := map[string]struct{}{}
	for _, e := range events {
		kind, value, ok := classify(e.Data)
		if !ok {
			continue
		}
		scores[kind][value] = append(scores[kind][value], confidence(e.Confidence))
		if _, dup := seen[entityKey(kind, value)]; dup {
			continue
		}
		seen[entityKey(kind, value)] = struct{}{}
		entities[kind] = append(entities[kind], value)
	}

	index := map[string]string{}
	for _, kind := range entityTypes {
		for _, value := range entities[kind] {
			index[value] = entityKey(kind, value)
		}
	}
	for _, t := range targets {
		key := entityKey(t.Type, t.Value)
		index[t.Value] = key
		if _, normalized, ok := classify(t.Value); ok {
			index[normalized] = key
		}
	}

	return map[string]any{
		"domains":           runtime.MergeUnique(snapshot.Strings(profile.SectionDigital, "domains"), entities[entityDomains]),
		"ips":               runtime.MergeUnique(snapshot.Strings(profile.SectionDigital, "ips"), entities[entityIPs]),
		"discovered_emails": runtime.MergeUnique(snapshot.Strings(profile.SectionDigital, "discovered_emails"), entities[entityEmails]),
		"spiderfoot": map[string]any{
			"targets":           targetList(targets),
			"scan_profile":      m.useCase,
			"modules_requested": runtime.Strings(m.modules),
			"entities": map[string]any{
				entityEmails:  runtime.Strings(entities[entityEmails]),
				entityDomains: runtime.Strings(entities[entityDomains]),
				entityIPs:     runtime.Strings(entities[entityIPs]),
			},
			"entity_confidence": entityConfidence(entities, scores),
			"relationships":     relationships(events, index),
			"summary": map[string]any{
				"event_counts": eventCounts(events),
				"entity_counts": map[string]any{
					entityEmails:  len(entities[entityEmails]),
					entityDomains: len(entities[entityDomains]),
					entityIPs:     len(entities[entityIPs]),
				},
			},
			"execution":  map[string]any{"duration_s": math.RoundToEven(elapsed*100) / 100, "targets": len(targets)},
			"errors":     scanErrors,
			"raw_events": rawEvents(events),
		},
	}
}

func targetList(targets []Target) []any {
	out := make([]any, 0, len(targets))
	for _, t := range targets {
		out = append(out, map[string]any{"type": t.Type, "value": t.Value})
	}
	return out
}

// relationships links event sources to event data when both are known
// entities or seeds, once per source, target and event type.
func relationships(events []Event, index map[string]string) []any {
	lookup := func(value string) string {
		if key, ok := index[value]; ok {
			return key
		}
		if _, normalized, ok := classify(value); ok {
			return index[normalized]
		}
		return ""
	}
	seen := map[string]struct{}{}
	out := []any{}
	for _, e := range events {
		if e.Source == "" || e.Data == "" {
			continue
		}
		from, to := lookup(e.Source), lookup(e.Data)
		if from == "" || to == "" {
			continue
		}
		dedupe := from + "|" + to + "|" + e.Type
		if _, dup := seen[dedupe]; dup {
			continue
		}
		seen[dedupe] = struct{}{}
		out = append(out, map[string]any{
			"source":     from,
			"target":     to,
			"event_type": e.Type,
			"confidence": confidence(e.Confidence),
			"module":     e.Module,
		})
		if len(out) >= maxRelationships {
			break
		}
	}
	return out
}

func entityConfidence(entities map[string][]string, scores map[string]map[string][]float64) map[string]any {
	out := map[string]any{}
	for _, kind := range entityTypes {
		entries := make([]any, 0, len(entities[kind]))
		for _, value := range entities[kind] {
			values := scores[kind][value]
			avg := 0.0
			for _, s := range values {
				avg += s
			}
			if len(values) > 0 {
				avg /= float64(len(values))
			}
			entries = append(entries, map[string]any{"value": value, "confidence": math.RoundToEven(avg*1000) / 1000})
		}
		out[kind] = entries
	}
	return out
}

func eventCounts(events []Event) map[string]any {
	counts := map[string]int{}
	for _, e := range events {
		typ := e.Type
		if typ == "" {
			typ = "unknown"
		}
		counts[typ]++
	}
	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, typ)
	}
	sort.Strings(types)
	out := make(map[string]any, len(counts))
	for _, typ := range types {
		out[typ] = counts[typ]
	}
	return out
}

func rawEvents(events []Event) []any {
	limit := len(events)
	if limit > maxRawEvents {
		limit = maxRawEvents
	}
	out := make([]any, 0, limit)
	for _, e := range events[:limit] {
		out = append(out, map[string]any{
			"data":       e.Data,
			"type":       e.Type,
			"module":     e.Module,
			"confidence": confidence(e.Confidence),
		})
	}
	return out
}

// confidence maps SpiderFoot's 0-100 scale onto 0-1.
func confidence(value float64) float64 {
	return math.Max(0, math.Min(1, value/100))
}
