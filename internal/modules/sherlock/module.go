// Package sherlock probes username-bearing platforms for the profile's
// handles and records claimed accounts in the social section.
package sherlock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/modules/runtime"
	"github.com/kingrea/intel-lattice/internal/profile"
)

const (
	moduleID      = "Sherlock"
	moduleVersion = "1.0.0"

	// SkipNoUsernames is reported when the profile carries no handles.
	SkipNoUsernames = "No usernames found in profile.contact.usernames or profile.identity.aliases."

	defaultParallelism = 8
	defaultTimeout     = 12 * time.Second
	maxBodyBytes       = 200_000
	userAgent          = "Mozilla/5.0 (compatible; IntelLattice/1.0; +https://github.com/sherlock-project/sherlock)"
)

var (
	activityKeywords     = []string{"last active", "joined", "posts", "followers", "following", "recent", "activity"}
	completenessKeywords = []string{"bio", "about", "profile", "location", "website", "avatar"}
	forumHints           = []string{"forum", "forums", "discussions", "discussion", "boards", "board", "community", "bbs"}
	socialHints          = []string{"twitter", "instagram", "facebook", "tiktok", "linkedin", "youtube", "pinterest", "snapchat", "reddit", "mastodon", "threads", "bluesky", "tumblr", "weibo", "vk", "discord"}

	avatarMeta = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:image["'][^>]+content=["']([^"']+)["']`)
	imageSrc   = regexp.MustCompile(`(?i)<link[^>]+rel=["']image_src["'][^>]+href=["']([^"']+)["']`)
)

// Option customizes the module.
type Option func(*Module)

// Module checks every username against every platform.
type Module struct {
	*module.Base
	client      *http.Client
	logger      *zap.Logger
	now         func() time.Time
	platforms   []Platform
	parallelism int
	timeout     time.Duration
}

// Register adds the module, with a Prepare hook that skips profiles without
// usernames, to reg.
func Register(reg *module.Registry, opts ...Option) {
	if reg == nil {
		return
	}
	reg.MustRegister(module.Spec{
		ID: moduleID,
		Prepare: func(_ module.Env, snapshot profile.Profile, _ module.Config) (module.Config, error) {
			if len(Usernames(snapshot)) == 0 {
				return nil, module.Skip(SkipNoUsernames)
			}
			return nil, nil
		},
		Factory: func(env module.Env, cfg module.Config) (module.Module, error) {
			var platforms []Platform
			var err error
			if path := cfg.String("platforms_file", ""); path != "" {
				platforms, err = LoadPlatformsFile(path)
			} else {
				platforms, err = DefaultPlatforms()
			}
			if err != nil {
				return nil, err
			}
			base := []Option{
				WithHTTPClient(env.HTTPClient),
				WithLogger(env.Logger),
				WithClock(env.Now),
				WithPlatforms(platforms),
				WithParallelism(cfg.Int("parallelism", defaultParallelism)),
				WithTimeout(cfg.Duration("timeout", defaultTimeout)),
			}
			return New(append(base, opts...)...), nil
		},
	})
}

// New creates the module with the embedded platform table.
func New(opts ...Option) *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Username search",
		Description: "Probes known platforms for each username and records claimed profiles.",
		Version:     moduleVersion,
	}
	m := &Module{
		Base:        module.NewBase(info, profile.SectionSocial),
		client:      http.DefaultClient,
		logger:      zap.NewNop(),
		now:         time.Now,
		parallelism: defaultParallelism,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.platforms == nil {
		if platforms, err := DefaultPlatforms(); err == nil {
			m.platforms = platforms
		}
	}
	return m
}

// WithHTTPClient sets the probing client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Module) {
		if client != nil {
			m.client = client
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

// WithClock overrides the time source used for activity timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Module) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithPlatforms replaces the platform table.
func WithPlatforms(platforms []Platform) Option {
	return func(m *Module) {
		m.platforms = platforms
	}
}

// WithParallelism bounds concurrent probes.
func WithParallelism(n int) Option {
	return func(m *Module) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(m *Module) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Usernames collects contact.usernames and identity.aliases, normalized,
// de-duplicated and sorted.
func Usernames(snapshot profile.Profile) []string {
	var candidates []string
	for _, raw := range snapshot.Strings(profile.SectionContact, "usernames") {
		candidates = append(candidates, runtime.NormalizeUsername(raw))
	}
	for _, raw := range snapshot.Strings(profile.SectionIdentity, "aliases") {
		candidates = append(candidates, runtime.NormalizeUsername(raw))
	}
	return runtime.SortedSet(candidates)
}

// Hit is a claimed account.
type Hit struct {
	Platform  string
	URL       string
	Timestamp string
	Summary   string
}

// Execute implements module.Module.
func (m *Module) Execute(ctx context.Context, snapshot profile.Profile) (profile.Update, error) {
	usernames := Usernames(snapshot)
	if len(usernames) == 0 {
		return nil, errors.New("Sherlock requires at least one username.")
	}

	hits := make([]*Hit, len(usernames)*len(m.platforms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for ui, username := range usernames {
		for pi, platform := range m.platforms {
			slot := ui*len(m.platforms) + pi
			username, platform := username, platform
			g.Go(func() error {
				hit, err := m.probe(gctx, username, platform)
				if err != nil {
					m.logger.Debug("probe failed", zap.String("platform", platform.Name), zap.String("username", username), zap.Error(err))
					return nil
				}
				hits[slot] = hit
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	platforms := snapshot.Strings(profile.SectionSocial, "platforms")
	links := snapshot.Strings(profile.SectionSocial, "profile_links")
	activity := runtime.SectionList(snapshot, profile.SectionSocial, "last_activity")
	seen := map[string]struct{}{}
	for _, link := range links {
		seen[canonicalURL(link)] = struct{}{}
	}
	for _, hit := range hits {
		if hit == nil {
			continue
		}
		if _, dup := seen[hit.URL]; dup {
			continue
		}
		seen[hit.URL] = struct{}{}
		platforms = append(platforms, hit.Platform)
		links = append(links, hit.URL)
		activity = append(activity, map[string]any{
			"platform":  hit.Platform,
			"timestamp": hit.Timestamp,
			"summary":   hit.Summary,
		})
	}
	return m.Update(map[string]any{
		"platforms":     runtime.Strings(runtime.SortedSet(platforms)),
		"profile_links": runtime.Strings(runtime.SortedSet(links)),
		"last_activity": activity,
	}), nil
}

func (m *Module) probe(ctx context.Context, username string, p Platform) (*Hit, error) {
	if p.regex != nil && !p.regex.MatchString(username) {
		return nil, nil
	}
	profileURL := interpolate(p.URL, username)
	probeURL := profileURL
	if p.URLProbe != "" {
		probeURL = interpolate(p.URLProbe, username)
	}
	method := strings.ToUpper(p.RequestMethod)
	if method == "" {
		method = http.MethodHead
		if p.detects(ErrorMessage) {
			method = http.MethodGet
		}
	}
	requireBody := method != http.MethodHead && p.detects(ErrorMessage)

	var body io.Reader
	var payload []byte
	if p.RequestPayload != nil {
		encoded, err := json.Marshal(interpolateValue(p.RequestPayload, username))
		if err != nil {
			return nil, err
		}
		payload = encoded
		body = bytes.NewReader(payload)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, probeURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range p.Headers {
		if value == nil {
			continue
		}
		req.Header.Set(key, interpolate(fmt.Sprint(value), username))
	}

	client := m.client
	if p.detects(ErrorResponseURL) {
		noRedirect := *m.client
		noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		client = &noRedirect
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	text := ""
	if requireBody {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err == nil {
			text = string(data)
		}
	}
	finalURL := resp.Request.URL.String()
	if !claimed(p, resp.StatusCode, text) {
		return nil, nil
	}

	avatar := extractAvatar(text)
	activityScore := keywordScore(text, activityKeywords, 6)
	completenessScore := keywordScore(text, completenessKeywords, 6)
	confidence := confidenceScore(p, resp.StatusCode, text)
	signals := confidence
	if avatar != "" {
		signals += 0.2
	}
	if text != "" {
		signals += 0.1
	}
	signals = math.Min(1, signals)
	relevance := math.Min(1, 0.4*activityScore+0.3*completenessScore+0.3*signals)
	if avatar == "" {
		avatar = "none"
	}
	summary := fmt.Sprintf(
		"source=sherlock; username=%s; category=%s; confidence=%.2f; relevance=%.2f; activity=%.2f; completeness=%.2f; signals=%.2f; status=%d; avatar=%s",
		username, classify(p), confidence, relevance, activityScore, completenessScore, signals, resp.StatusCode, avatar,
	)
	if p.detects(ErrorResponseURL) {
		finalURL = profileURL
	}
	return &Hit{
		Platform:  p.Name,
		URL:       canonicalURL(finalURL),
		Timestamp: m.now().UTC().Format(time.RFC3339),
		Summary:   summary,
	}, nil
}

// claimed applies the platform's error detection strategies in order:
// message, status code, then response url.
func claimed(p Platform, status int, body string) bool {
	available, taken := false, false
	if p.detects(ErrorMessage) && len(p.ErrorMsg) > 0 {
		lowered := strings.ToLower(body)
		for _, msg := range p.ErrorMsg {
			if strings.Contains(lowered, strings.ToLower(msg)) {
				available = true
				break
			}
		}
		if !available {
			taken = true
		}
	}
	if p.detects(ErrorStatusCode) && !available {
		switch {
		case containsInt(p.ErrorCode, status):
			available = true
		case status < 200 || status >= 300:
			available = true
		default:
			taken = true
		}
	}
	if p.detects(ErrorResponseURL) && !available {
		if status >= 200 && status < 300 {
			taken = true
		} else {
			available = true
		}
	}
	return taken && !available
}

func confidenceScore(p Platform, status int, body string) float64 {
	var base float64
	switch {
	case status >= 200 && status < 300:
		base = 0.7
	case status >= 300 && status < 400:
		base = 0.55
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		base = 0.5
	case status == http.StatusTooManyRequests:
		base = 0.35
	default:
		base = 0.2
	}
	if p.detects(ErrorMessage) && body != "" {
		base += 0.1
	}
	return math.Min(1, base)
}

func classify(p Platform) string {
	combined := strings.ToLower(p.Name + " " + p.URLMain)
	for _, hint := range forumHints {
		if strings.Contains(combined, hint) {
			return "forum"
		}
	}
	for _, hint := range socialHints {
		if strings.Contains(combined, hint) {
			return "social"
		}
	}
	if strings.Contains(strings.ToLower(strings.Join(p.Tags, " ")), "forum") {
		return "forum"
	}
	return "service"
}

func keywordScore(text string, keywords []string, max int) float64 {
	if text == "" || max == 0 {
		return 0
	}
	lowered := strings.ToLower(text)
	hits := 0
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			hits++
		}
	}
	return math.Min(1, float64(hits)/float64(max))
}

func extractAvatar(body string) string {
	if match := avatarMeta.FindStringSubmatch(body); match != nil {
		return match[1]
	}
	if match := imageSrc.FindStringSubmatch(body); match != nil {
		return match[1]
	}
	return ""
}

// canonicalURL lower-cases scheme and host, drops the fragment and any
// trailing slash.
func canonicalURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = ""
	parsed.Fragment = ""
	return parsed.String()
}

func interpolate(template, username string) string {
	return strings.ReplaceAll(template, "{}", username)
}

func interpolateValue(value any, username string) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = interpolateValue(item, username)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = interpolateValue(item, username)
		}
		return out
	case string:
		return interpolate(v, username)
	default:
		return v
	}
}

func containsInt(values []int, target int) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
