// Package planner scores how complete a profile is against the document schema
// and ranks the enrichment modules most likely to close the gaps.
package planner

import (
	"errors"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kingrea/intel-lattice/internal/profile"
	"github.com/kingrea/intel-lattice/internal/schema"
)

// SectionMissing marks a section that is absent and declares no required fields.
const SectionMissing = "__section_missing__"

// SectionGap describes the missing required fields of one section.
type SectionGap struct {
	Section       string   `json:"section"`
	MissingFields []string `json:"missing_fields"`
	Completeness  float64  `json:"completeness"`
}

// MissingRatio is 1 - completeness.
func (g SectionGap) MissingRatio() float64 {
	return 1 - g.Completeness
}

// GapReport lists one gap per schema section, in schema order.
type GapReport []SectionGap

// Lookup returns the gap for section.
func (r GapReport) Lookup(section string) (SectionGap, bool) {
	for _, gap := range r {
		if gap.Section == section {
			return gap, true
		}
	}
	return SectionGap{}, false
}

// Suggestion is a ranked recommendation to run Module to enrich Section.
type Suggestion struct {
	Module  string  `json:"module"`
	Section string  `json:"section"`
	Score   float64 `json:"score"`
}

// Planner holds the requirement index and the section candidate table. It is
// immutable after construction and safe for concurrent use.
type Planner struct {
	requirements schema.RequirementIndex
	candidates   map[string][]string
	logger       *zap.Logger
}

// New builds a planner from a parsed schema and a section -> ranked candidate
// table (usually workflow.Catalog.SectionModules).
func New(s *schema.Schema, candidates map[string][]string, logger *zap.Logger) (*Planner, error) {
	if s == nil {
		return nil, errors.New("planner: schema is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	requirements := s.Requirements()
	if len(requirements) == 0 {
		return nil, errors.New("planner: schema declares no sections")
	}
	table := make(map[string][]string, len(candidates))
	for section, modules := range candidates {
		table[section] = append([]string(nil), modules...)
	}
	return &Planner{requirements: requirements, candidates: table, logger: logger}, nil
}

// Requirements returns the planner's requirement index.
func (p *Planner) Requirements() schema.RequirementIndex {
	return append(schema.RequirementIndex(nil), p.requirements...)
}

// AnalyzeGaps reports, for every schema section, which required fields are
// missing and the resulting completeness. It does not modify the profile.
func (p *Planner) AnalyzeGaps(doc profile.Profile) GapReport {
	report := make(GapReport, 0, len(p.requirements))
	for _, req := range p.requirements {
		missing := []string{}
		section, ok := doc.Section(req.Section)
		if !ok {
			missing = append(missing, req.Required...)
			if len(missing) == 0 {
				missing = []string{SectionMissing}
			}
		} else {
			for _, field := range req.Required {
				if profile.IsEmpty(section[field]) {
					missing = append(missing, field)
				}
			}
		}
		denominator := math.Max(1, float64(len(req.Required)))
		completeness := math.Max(0, 1-float64(len(missing))/denominator)
		report = append(report, SectionGap{
			Section:       req.Section,
			MissingFields: missing,
			Completeness:  completeness,
		})
	}
	return report
}

// Suggest ranks candidate modules for incomplete sections, skipping any module
// named in history (case-insensitive). Results are sorted by score, highest
// first; equal scores keep section then candidate order.
func (p *Planner) Suggest(doc profile.Profile, history []string) []Suggestion {
	executed := make(map[string]struct{}, len(history))
	for _, name := range history {
		executed[strings.ToLower(name)] = struct{}{}
	}
	suggestions := []Suggestion{}
	for _, gap := range p.AnalyzeGaps(doc) {
		modules := p.candidates[gap.Section]
		if len(modules) == 0 {
			continue
		}
		ratio := gap.MissingRatio()
		if ratio <= 0 {
			continue
		}
		for rank, name := range modules {
			if _, done := executed[strings.ToLower(name)]; done {
				continue
			}
			suggestions = append(suggestions, Suggestion{
				Module:  name,
				Section: gap.Section,
				Score:   Score(ratio, rank, len(gap.MissingFields)),
			})
		}
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	p.logger.Debug("suggestions ranked", zap.Int("count", len(suggestions)), zap.Int("history", len(executed)))
	return suggestions
}

// Score combines the missing ratio, the candidate's rank within its section
// and the number of missing fields, rounded half-to-even to two decimals.
func Score(missingRatio float64, rank, missingFields int) float64 {
	base := missingRatio * 100
	priority := math.Max(0.5, 1-float64(rank)*0.1)
	pressure := 1 + float64(missingFields)*0.05
	return round2(base * priority * pressure)
}

func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
