// Package harvester enumerates mail servers, TXT records and addresses for
// the profile's domains and folds them into the digital section.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/modules/runtime"
	"github.com/kingrea/intel-lattice/internal/profile"
)

const (
	moduleID      = "theHarvester"
	moduleVersion = "1.0.0"

	defaultParallelism = 4
	defaultTimeout     = 10 * time.Second
)

// Option customizes the harvester module.
type Option func(*Module)

// Module resolves DNS records for each target domain.
type Module struct {
	*module.Base
	resolver    runtime.Resolver
	logger      *zap.Logger
	domains     []string
	parallelism int
	timeout     time.Duration
}

// Register adds the module factory to the registry.
func Register(reg *module.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(module.Spec{
		ID: moduleID,
		Factory: func(env module.Env, cfg module.Config) (module.Module, error) {
			base := []Option{
				WithLogger(env.Logger),
				WithDomains(cfg.Strings("domains")...),
				WithParallelism(cfg.Int("parallelism", defaultParallelism)),
				WithTimeout(cfg.Duration("timeout", defaultTimeout)),
			}
			return New(append(base, opts...)...), nil
		},
	})
}

// New creates a harvester using the system resolver.
func New(opts ...Option) *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Domain e-mail enumeration",
		Description: "Resolves MX, TXT and address records for target domains and collects mailbox candidates.",
		Version:     moduleVersion,
	}
	m := &Module{
		Base:        module.NewBase(info, profile.SectionDigital),
		resolver:    runtime.DefaultResolver(),
		logger:      zap.NewNop(),
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

// WithResolver swaps the DNS resolver.
func WithResolver(r runtime.Resolver) Option {
	return func(m *Module) {
		if r != nil {
			m.resolver = r
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

// WithDomains overrides the domains read from the profile.
func WithDomains(domains ...string) Option {
	return func(m *Module) {
		m.domains = append([]string{}, domains...)
	}
}

// WithParallelism bounds the number of concurrent lookups.
func WithParallelism(n int) Option {
	return func(m *Module) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithTimeout bounds the whole enumeration.
func WithTimeout(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.timeout = d
		}
	}
}

type domainRecords struct {
	MX  []string
	TXT []string
	A   []string
}

// Execute implements module.Module.
func (m *Module) Execute(ctx context.Context, snapshot profile.Profile) (profile.Update, error) {
	domains, err := runtime.TargetDomains(snapshot, m.domains)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]*domainRecords, len(domains))
	for _, domain := range domains {
		results[domain] = &domainRecords{}
	}
	var lookupErrs []error
	record := func(err error) {
		mu.Lock()
		lookupErrs = append(lookupErrs, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for _, domain := range domains {
		domain := domain
		entry := results[domain]
		g.Go(func() error {
			mx, err := m.resolver.LookupMX(gctx, domain)
			if err != nil {
				record(fmt.Errorf("mx %s: %w", domain, err))
				return nil
			}
			hosts := make([]string, 0, len(mx))
			for _, rec := range mx {
				hosts = append(hosts, strings.TrimSuffix(strings.ToLower(rec.Host), "."))
			}
			mu.Lock()
			entry.MX = runtime.SortedSet(hosts)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			txt, err := m.resolver.LookupTXT(gctx, domain)
			if err != nil {
				record(fmt.Errorf("txt %s: %w", domain, err))
				return nil
			}
			mu.Lock()
			entry.TXT = append([]string{}, txt...)
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			addrs, err := m.resolver.LookupHost(gctx, domain)
			if err != nil {
				record(fmt.Errorf("host %s: %w", domain, err))
				return nil
			}
			mu.Lock()
			entry.A = runtime.SortedSet(addrs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("dns enumeration: %w", err)
	}
	for _, err := range lookupErrs {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			continue
		}
		m.logger.Debug("lookup failed", zap.Error(err))
	}

	return m.Update(m.payload(snapshot, domains, results)), nil
}

func (m *Module) payload(snapshot profile.Profile, domains []string, results map[string]*domainRecords) map[string]any {
	var ips, mailServers, candidates []string
	dnsRecords := make([]any, 0, len(domains))
	for _, domain := range domains {
		entry := results[domain]
		ips = append(ips, entry.A...)
		mailServers = append(mailServers, entry.MX...)
		for _, txt := range entry.TXT {
			for _, email := range runtime.EmailInText.FindAllString(txt, -1) {
				candidates = append(candidates, strings.ToLower(email))
			}
		}
		dnsRecords = append(dnsRecords, map[string]any{
			"domain": domain,
			"mx":     runtime.Strings(entry.MX),
			"txt":    runtime.Strings(entry.TXT),
			"a":      runtime.Strings(entry.A),
		})
	}
	for _, email := range snapshot.Strings(profile.SectionContact, "emails") {
		email = strings.ToLower(email)
		for _, domain := range domains {
			if runtime.EmailDomain(email) == domain {
				candidates = append(candidates, email)
			}
		}
	}
	sort.Strings(ips)

	return map[string]any{
		"domains":          runtime.MergeUnique(snapshot.Strings(profile.SectionDigital, "domains"), domains),
		"ips":              runtime.MergeUnique(snapshot.Strings(profile.SectionDigital, "ips"), ips),
		"mail_servers":     runtime.Strings(runtime.SortedSet(mailServers)),
		"email_candidates": runtime.Strings(runtime.SortedSet(candidates)),
		"dns_records":      dnsRecords,
	}
}
