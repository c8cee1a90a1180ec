// Package report renders a processed profile as a JSON payload and a
// Markdown summary for analysts. Both files carry the same metadata: a
// `_intel` block in JSON and YAML front matter in Markdown.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/profile"
)

const (
	// JSONFile is the structured report file name.
	JSONFile = "profile_report.json"
	// MarkdownFile is the analyst report file name.
	MarkdownFile = "profile_report.md"
)

// Paths lists the files written by Build.
type Paths struct {
	JSON     string `json:"json"`
	Markdown string `json:"markdown"`
}

// Builder writes reports into one output directory.
type Builder struct {
	outputDir string
	logger    *zap.Logger
	now       func() time.Time
}

// Option customizes a Builder.
type Option func(*Builder)

// WithLogger sets the builder logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock injects a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// New returns a builder that writes into outputDir.
func New(outputDir string, opts ...Option) (*Builder, error) {
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("report: output directory is required")
	}
	b := &Builder{outputDir: outputDir, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Input is everything a report is built from.
type Input struct {
	Subject string
	Profile profile.Profile
	// FieldSources maps dotted field paths to contributing modules. When nil
	// it is derived from the profile's orchestration record.
	FieldSources map[string][]string
	// RiskScore overrides risk.exposure_score.
	RiskScore *float64
}

// Build writes the JSON and Markdown reports.
func (b *Builder) Build(in Input) (Paths, error) {
	if in.Profile == nil {
		return Paths{}, errors.New("report: profile is required")
	}
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("report: ensure output dir: %w", err)
	}
	sources := in.FieldSources
	if sources == nil {
		sources = FieldSources(in.Profile)
	}
	sources = normalizeSources(sources)
	risk := in.RiskScore
	if risk == nil {
		risk = exposureScore(in.Profile)
	}
	body := []byte(Markdown(in.Profile, sources, risk))
	sum := sha256.Sum256(body)
	meta := Metadata{
		Subject:   in.Subject,
		RunID:     in.Profile.String(profile.SectionOrchestration, "run_id"),
		Modules:   contributingModules(sources),
		RiskScore: risk,
		CreatedAt: b.now().UTC(),
		Checksum:  hex.EncodeToString(sum[:]),
	}

	paths := Paths{
		JSON:     filepath.Join(b.outputDir, JSONFile),
		Markdown: filepath.Join(b.outputDir, MarkdownFile),
	}
	if err := b.writeJSON(paths.JSON, in.Profile, sources, risk, meta); err != nil {
		return Paths{}, err
	}
	content, err := WriteFrontMatter(meta, body)
	if err != nil {
		return Paths{}, err
	}
	if err := os.WriteFile(paths.Markdown, content, 0o644); err != nil {
		return Paths{}, fmt.Errorf("report: write markdown: %w", err)
	}
	b.logger.Info("report written", zap.String("json", paths.JSON), zap.String("markdown", paths.Markdown))
	return paths, nil
}

func (b *Builder) writeJSON(path string, doc profile.Profile, sources map[string][]string, risk *float64, meta Metadata) error {
	payload := map[string]any{
		"profile":       doc,
		"field_sources": sources,
		"risk_score":    risk,
		"_intel": map[string]any{
			"subject":  meta.Subject,
			"run":      meta.RunID,
			"modules":  meta.Modules,
			"created":  meta.CreatedAt.Format(timeLayout),
			"checksum": meta.Checksum,
		},
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("report: write json: %w", err)
	}
	return nil
}

// FieldSources attributes each section written in the last run to the
// modules that completed against it.
func FieldSources(doc profile.Profile) map[string][]string {
	out := map[string][]string{}
	for _, raw := range doc.List(profile.SectionOrchestration, "module_results") {
		result, ok := raw.(map[string]any)
		if !ok || result["status"] != "completed" {
			continue
		}
		moduleID, _ := result["module"].(string)
		section, _ := result["profile_section"].(string)
		if moduleID == "" || section == "" {
			continue
		}
		out[section] = append(out[section], moduleID)
	}
	return out
}

func normalizeSources(sources map[string][]string) map[string][]string {
	out := make(map[string][]string, len(sources))
	for path, modules := range sources {
		seen := map[string]struct{}{}
		cleaned := []string{}
		for _, m := range modules {
			if _, dup := seen[m]; dup || strings.TrimSpace(m) == "" {
				continue
			}
			seen[m] = struct{}{}
			cleaned = append(cleaned, m)
		}
		out[path] = cleaned
	}
	return out
}

func contributingModules(sources map[string][]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, modules := range sources {
		for _, m := range modules {
			if _, dup := seen[m]; !dup {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

func exposureScore(doc profile.Profile) *float64 {
	section, ok := doc.Section(profile.SectionRisk)
	if !ok {
		return nil
	}
	var score float64
	switch v := section["exposure_score"].(type) {
	case float64:
		score = v
	case int:
		score = float64(v)
	case int64:
		score = float64(v)
	default:
		return nil
	}
	return &score
}
