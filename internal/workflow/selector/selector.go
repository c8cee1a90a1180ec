// Package selector turns objectives and extracted targets into the set of
// catalogued modules to run. Selection is a pure rule table: keyword rules
// over the lower-cased objectives, then target rules over non-empty buckets.
package selector

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kingrea/intel-lattice/internal/target"
	"github.com/kingrea/intel-lattice/internal/workflow"
)

// Predicate decides whether a rule fires for the given objectives and targets.
type Predicate func(objectives []string, targets target.Targets) bool

// Rule pairs a predicate with the modules it selects.
type Rule struct {
	Name      string
	Predicate Predicate
	Modules   []string
}

// Selector evaluates a rule table built from a catalog.
type Selector struct {
	rules    []Rule
	fallback []string
}

// New compiles the catalog's keyword and target rules into a rule table.
func New(c workflow.Catalog) (*Selector, error) {
	rules := make([]Rule, 0, len(c.Keywords)+len(c.Targets))
	for idx, kw := range c.Keywords {
		pred, err := keywordPredicate(kw)
		if err != nil {
			return nil, fmt.Errorf("selector: keywords[%d]: %w", idx, err)
		}
		rules = append(rules, Rule{Name: kw.Label(), Predicate: pred, Modules: kw.Modules})
	}
	for _, tr := range c.Targets {
		bucket := target.Bucket(tr.Bucket)
		rules = append(rules, Rule{
			Name: "target:" + tr.Bucket,
			Predicate: func(_ []string, targets target.Targets) bool {
				return targets.Has(bucket)
			},
			Modules: tr.Modules,
		})
	}
	return NewWithRules(rules, c.Fallback), nil
}

// NewWithRules builds a selector from an explicit rule table.
func NewWithRules(rules []Rule, fallback []string) *Selector {
	return &Selector{
		rules:    append([]Rule(nil), rules...),
		fallback: append([]string(nil), fallback...),
	}
}

// Rules returns the compiled rule table.
func (s *Selector) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Select returns the sorted union of every matching rule's modules, or the
// fallback set when nothing matches.
func (s *Selector) Select(objectives []string, targets target.Targets) []string {
	lowered := lowerAll(objectives)
	chosen := map[string]struct{}{}
	for _, rule := range s.rules {
		if rule.Predicate == nil || !rule.Predicate(lowered, targets) {
			continue
		}
		for _, id := range rule.Modules {
			chosen[id] = struct{}{}
		}
	}
	if len(chosen) == 0 {
		for _, id := range s.fallback {
			chosen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(chosen))
	for id := range chosen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Matched lists the names of rules that fire, in table order.
func (s *Selector) Matched(objectives []string, targets target.Targets) []string {
	lowered := lowerAll(objectives)
	var names []string
	for _, rule := range s.rules {
		if rule.Predicate != nil && rule.Predicate(lowered, targets) {
			names = append(names, rule.Name)
		}
	}
	return names
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

func keywordPredicate(kw workflow.KeywordRule) (Predicate, error) {
	if kw.Contains != "" {
		needle := strings.ToLower(kw.Contains)
		return func(objectives []string, _ target.Targets) bool {
			for _, objective := range objectives {
				if strings.Contains(objective, needle) {
					return true
				}
			}
			return false
		}, nil
	}
	re, err := regexp.Compile(kw.Pattern)
	if err != nil {
		return nil, err
	}
	return func(objectives []string, _ target.Targets) bool {
		for _, objective := range objectives {
			if re.MatchString(objective) {
				return true
			}
		}
		return false
	}, nil
}
