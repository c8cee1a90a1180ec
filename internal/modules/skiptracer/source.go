package skiptracer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Source categories and their base confidence.
var categoryConfidence = map[string]float64{
	"breach":         0.6,
	"social":         0.7,
	"public_records": 0.65,
	"unknown":        0.4,
}

// Source is one enrichment backend.
type Source interface {
	Name() string
	Category() string
	Supports(kind string) bool
	Query(ctx context.Context, id Identifier) (any, error)
}

// HTTPSource queries a JSON endpoint. "{}" in URL is replaced with the
// escaped identifier and "{type}" with its kind.
type HTTPSource struct {
	SourceName     string   `yaml:"name" json:"name"`
	SourceCategory string   `yaml:"category" json:"category"`
	Types          []string `yaml:"types" json:"types"`
	URL            string   `yaml:"url" json:"url"`
	Headers        map[string]string `yaml:"headers" json:"headers"`

	Client *http.Client `yaml:"-" json:"-"`
}

// Name implements Source.
func (s HTTPSource) Name() string { return s.SourceName }

// Category implements Source.
func (s HTTPSource) Category() string {
	if _, ok := categoryConfidence[s.SourceCategory]; ok {
		return s.SourceCategory
	}
	return "unknown"
}

// Supports implements Source.
func (s HTTPSource) Supports(kind string) bool {
	for _, t := range s.Types {
		if t == kind {
			return true
		}
	}
	return false
}

// Query implements Source. A 404 yields an empty payload.
func (s HTTPSource) Query(ctx context.Context, id Identifier) (any, error) {
	target := strings.ReplaceAll(s.URL, "{type}", id.Kind)
	target = strings.ReplaceAll(target, "{}", url.QueryEscape(id.Normalized))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range s.Headers {
		req.Header.Set(key, value)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return map[string]any{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: unexpected status %d", s.SourceName, resp.StatusCode)
	}
	var payload any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", s.SourceName, err)
	}
	return payload, nil
}
