// Package ghunt investigates the Google account behind the profile's e-mail
// address and records account, service and Workspace signals in the digital
// section.
package ghunt

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/modules/runtime"
	"github.com/kingrea/intel-lattice/internal/profile"
)

const (
	moduleID      = "GHunt"
	moduleVersion = "1.0.0"

	defaultBinary  = "ghunt"
	defaultTimeout = 2 * time.Minute
)

var consumerDomains = map[string]struct{}{"gmail.com": {}, "googlemail.com": {}}

// Option customizes the module.
type Option func(*Module)

// Module looks up a Google account with GHunt.
type Module struct {
	*module.Base
	lookup   Lookup
	resolver runtime.Resolver
	logger   *zap.Logger
	email    string
	timeout  time.Duration
}

// Register adds the module factory to the registry. Without an injected
// lookup the factory requires the ghunt executable and reports the module
// unavailable when it is missing.
func Register(reg *module.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(module.Spec{
		ID: moduleID,
		Factory: func(env module.Env, cfg module.Config) (module.Module, error) {
			base := []Option{
				WithLogger(env.Logger),
				WithEmail(cfg.String("email", "")),
				WithTimeout(cfg.Duration("timeout", defaultTimeout)),
			}
			m := New(append(base, opts...)...)
			if m.lookup == nil {
				binary := cfg.String("binary", defaultBinary)
				if _, err := exec.LookPath(binary); err != nil {
					return nil, fmt.Errorf("%w: ghunt executable %q not found", module.ErrUnavailable, binary)
				}
				m.lookup = CLI{Binary: binary}
			}
			return m, nil
		},
	})
}

// New creates the module. A Lookup must be supplied with WithLookup unless
// the module is built through Register.
func New(opts ...Option) *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Google account intelligence",
		Description: "Resolves the Google account behind an e-mail address and correlates YouTube, Maps and Photos presence.",
		Version:     moduleVersion,
	}
	m := &Module{
		Base:     module.NewBase(info, profile.SectionDigital),
		resolver: runtime.DefaultResolver(),
		logger:   zap.NewNop(),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithLookup sets the account lookup backend.
func WithLookup(lookup Lookup) Option {
	return func(m *Module) {
		if lookup != nil {
			m.lookup = lookup
		}
	}
}

// WithResolver sets the resolver used for Workspace MX detection.
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

// WithEmail overrides the address read from the profile.
func WithEmail(email string) Option {
	return func(m *Module) {
		m.email = strings.TrimSpace(email)
	}
}

// WithTimeout bounds the lookup.
func WithTimeout(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Execute implements module.Module.
func (m *Module) Execute(ctx context.Context, snapshot profile.Profile) (profile.Update, error) {
	if m.lookup == nil {
		return nil, errors.New("ghunt: no lookup backend configured")
	}
	email, err := m.targetEmail(snapshot)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	account, err := m.lookup.Lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	workspace := m.workspaceDomain(ctx, email)

	devices := runtime.SectionList(snapshot, profile.SectionDigital, "devices")
	accounts := runtime.SectionList(snapshot, profile.SectionDigital, "google_accounts")
	accounts = append(accounts, map[string]any{
		"email":     email,
		"found":     account.Found,
		"person_id": account.PersonID,
		"workspace": workspace,
	})
	var domains []string
	if account.Found {
		var more []any
		more, domains = Signals(account, email)
		devices = append(devices, more...)
	}
	return m.Update(map[string]any{
		"domains":         runtime.MergeUnique(snapshot.Strings(profile.SectionDigital, "domains"), domains),
		"devices":         devices,
		"google_accounts": accounts,
	}), nil
}

func (m *Module) targetEmail(snapshot profile.Profile) (string, error) {
	if m.email != "" {
		return strings.ToLower(m.email), nil
	}
	for _, email := range snapshot.Strings(profile.SectionContact, "emails") {
		if email = strings.TrimSpace(email); email != "" {
			return strings.ToLower(email), nil
		}
	}
	return "", errors.New("No email address provided in profile.contact.emails.")
}

// workspaceDomain reports whether a non-consumer address routes mail through
// Google Workspace.
func (m *Module) workspaceDomain(ctx context.Context, email string) bool {
	domain := runtime.EmailDomain(email)
	if _, consumer := consumerDomains[domain]; consumer || domain == "" {
		return false
	}
	records, err := m.resolver.LookupMX(ctx, domain)
	if err != nil {
		m.logger.Debug("mx lookup failed", zap.String("domain", domain), zap.Error(err))
		return false
	}
	for _, mx := range records {
		host := strings.ToLower(strings.TrimSuffix(mx.Host, "."))
		if strings.HasSuffix(host, "google.com") || strings.HasSuffix(host, "googlemail.com") {
			return true
		}
	}
	return false
}

// Signals converts an account into device entries and the service domains
// it evidences.
func Signals(account Account, email string) ([]any, []string) {
	lastSeen := any(nil)
	if !account.LastUpdated.IsZero() {
		lastSeen = account.LastUpdated.UTC().Format(time.RFC3339)
	}
	var devices []any
	var domains []string
	if account.PersonID != "" {
		devices = append(devices, device("google_account", fmt.Sprintf("gaia:%s;email:%s", account.PersonID, email), lastSeen))
	}

	services := map[string]float64{}
	for _, app := range account.Apps {
		if strings.Contains(strings.ToLower(app), "youtube") {
			services["youtube"] = 0.7
			domains = append(domains, "youtube.com")
			break
		}
	}
	switch account.MapsStatus {
	case "", "empty", "private":
		switch {
		case account.MapsReviews > 0 || account.MapsPhotos > 0:
			services["maps"] = 0.9
		case account.MapsStatus == "private":
			services["maps"] = 0.5
		default:
			services["maps"] = 0.6
		}
		domains = append(domains, "maps.google.com")
	}
	if account.ProfilePhotoURL != "" || account.CoverPhotoURL != "" || account.MapsPhotos > 0 {
		services["photos"] = 0.6
		if account.ProfilePhotoURL != "" {
			services["photos"] = 0.8
		}
		domains = append(domains, "photos.google.com")
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	total := 0.0
	for _, name := range names {
		confidence := services[name]
		total += confidence
		extra := ""
		if name == "maps" && len(account.MapsStats) > 0 {
			extra = fmt.Sprintf(";reviews=%d;photos=%d", account.MapsStats["reviews"], account.MapsStats["photos"])
		}
		devices = append(devices, device("google_service", fmt.Sprintf("service:%s;confidence=%.2f%s", name, confidence, extra), lastSeen))
	}
	if len(names) >= 2 {
		devices = append(devices, device("google_service_correlation",
			fmt.Sprintf("services=%s;confidence=%.2f", strings.Join(names, ","), total/float64(len(names))), lastSeen))
	}
	return devices, domains
}

func device(kind, identifier string, lastSeen any) map[string]any {
	return map[string]any{"type": kind, "os": "google", "identifier": identifier, "last_seen": lastSeen}
}
