// Package photon crawls the profile's web properties, staying on the seed
// hosts, and records discovered e-mail addresses and external hosts.
package photon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/kingrea/intel-lattice/internal/module"
	"github.com/kingrea/intel-lattice/internal/modules/runtime"
	"github.com/kingrea/intel-lattice/internal/profile"
)

const (
	moduleID      = "Photon"
	moduleVersion = "1.0.0"

	defaultMaxPages = 25
	defaultMaxDepth = 2
	maxBodyBytes    = 2 << 20
	userAgent       = "intel-lattice-photon/1.0"
)

// Option customizes the crawler.
type Option func(*Module)

// Module is a bounded same-host crawler.
type Module struct {
	*module.Base
	client   *http.Client
	logger   *zap.Logger
	seeds    []string
	scheme   string
	maxPages int
	maxDepth int
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
				WithHTTPClient(env.HTTPClient),
				WithLogger(env.Logger),
				WithSeeds(cfg.Strings("seeds")...),
				WithScheme(cfg.String("scheme", "https")),
				WithLimits(cfg.Int("max_pages", defaultMaxPages), cfg.Int("max_depth", defaultMaxDepth)),
			}
			return New(append(base, opts...)...), nil
		},
	})
}

// New creates a crawler.
func New(opts ...Option) *Module {
	info := module.Info{
		ID:          moduleID,
		Name:        "Web crawling",
		Description: "Crawls target sites on their own hosts and extracts e-mail addresses and outbound hosts.",
		Version:     moduleVersion,
	}
	m := &Module{
		Base:     module.NewBase(info, profile.SectionDigital),
		client:   http.DefaultClient,
		logger:   zap.NewNop(),
		scheme:   "https",
		maxPages: defaultMaxPages,
		maxDepth: defaultMaxDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// WithHTTPClient sets the client used for fetching pages.
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

// WithSeeds sets explicit start URLs instead of deriving them from domains.
func WithSeeds(seeds ...string) Option {
	return func(m *Module) {
		m.seeds = append([]string{}, seeds...)
	}
}

// WithScheme sets the scheme used for seeds derived from domains.
func WithScheme(scheme string) Option {
	return func(m *Module) {
		if scheme == "http" || scheme == "https" {
			m.scheme = scheme
		}
	}
}

// WithLimits bounds the crawl by page count and link depth.
func WithLimits(maxPages, maxDepth int) Option {
	return func(m *Module) {
		if maxPages > 0 {
			m.maxPages = maxPages
		}
		if maxDepth >= 0 {
			m.maxDepth = maxDepth
		}
	}
}

type queued struct {
	url   *url.URL
	depth int
}

type page struct {
	URL    string
	Status int
	Title  string
	Links  int
}

// Execute implements module.Module.
func (m *Module) Execute(ctx context.Context, snapshot profile.Profile) (profile.Update, error) {
	seeds, err := m.seedURLs(snapshot)
	if err != nil {
		return nil, err
	}
	hosts := map[string]struct{}{}
	queue := make([]queued, 0, len(seeds))
	visited := map[string]struct{}{}
	for _, seed := range seeds {
		hosts[seed.Hostname()] = struct{}{}
		queue = append(queue, queued{url: seed})
		visited[seed.String()] = struct{}{}
	}

	var pages []page
	var emails, external []string
	for len(queue) > 0 && len(pages) < m.maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := queue[0]
		queue = queue[1:]
		result, links, found, err := m.fetch(ctx, next.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Debug("fetch failed", zap.String("url", next.url.String()), zap.Error(err))
			continue
		}
		pages = append(pages, result)
		emails = append(emails, found...)
		for _, link := range links {
			if _, inScope := hosts[link.Hostname()]; !inScope {
				external = append(external, strings.ToLower(link.Hostname()))
				continue
			}
			if next.depth >= m.maxDepth {
				continue
			}
			key := link.String()
			if _, seen := visited[key]; seen {
				continue
			}
			visited[key] = struct{}{}
			queue = append(queue, queued{url: link, depth: next.depth + 1})
		}
	}
	if len(pages) == 0 {
		return nil, errors.New("photon: no pages could be fetched")
	}

	crawl := make([]any, 0, len(pages))
	for _, p := range pages {
		crawl = append(crawl, map[string]any{"url": p.URL, "status": p.Status, "title": p.Title, "links": p.Links})
	}
	return m.Update(map[string]any{
		"crawl":             crawl,
		"discovered_emails": runtime.Strings(runtime.SortedSet(emails)),
		"external_hosts":    runtime.Strings(runtime.SortedSet(external)),
	}), nil
}

func (m *Module) seedURLs(snapshot profile.Profile) ([]*url.URL, error) {
	raw := m.seeds
	if len(raw) == 0 {
		domains, err := runtime.TargetDomains(snapshot, nil)
		if err != nil {
			return nil, err
		}
		for _, domain := range domains {
			raw = append(raw, m.scheme+"://"+domain+"/")
		}
	}
	var out []*url.URL
	for _, entry := range raw {
		parsed, err := url.Parse(strings.TrimSpace(entry))
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, fmt.Errorf("photon: invalid seed url %q", entry)
		}
		parsed.Fragment = ""
		out = append(out, parsed)
	}
	return out, nil
}

func (m *Module) fetch(ctx context.Context, target *url.URL) (page, []*url.URL, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return page{}, nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := m.client.Do(req)
	if err != nil {
		return page{}, nil, nil, err
	}
	defer resp.Body.Close()
	result := page{URL: target.String(), Status: resp.StatusCode}
	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return result, nil, nil, nil
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return result, nil, nil, nil
	}
	var links []*url.URL
	var emails []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil && result.Title == "":
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		case n.Type == html.ElementNode && n.Data == "a":
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.TrimSpace(attr.Val)
				if strings.HasPrefix(strings.ToLower(href), "mailto:") {
					address := strings.SplitN(href[len("mailto:"):], "?", 2)[0]
					if runtime.ValidEmail(address) {
						emails = append(emails, strings.ToLower(address))
					}
					continue
				}
				ref, err := target.Parse(href)
				if err != nil || (ref.Scheme != "http" && ref.Scheme != "https") {
					continue
				}
				ref.Fragment = ""
				links = append(links, ref)
			}
		case n.Type == html.TextNode:
			for _, email := range runtime.EmailInText.FindAllString(n.Data, -1) {
				emails = append(emails, strings.ToLower(email))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	result.Links = len(links)
	return result, links, emails, nil
}
