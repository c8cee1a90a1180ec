package workflow

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kingrea/intel-lattice/internal/target"
)

// ErrInvalidCatalog marks configuration errors in a module catalog.
var ErrInvalidCatalog = errors.New("workflow: invalid catalog")

// DependencyGraph maps module identifiers to the module IDs they depend on.
type DependencyGraph map[string][]string

// Clone returns a deep copy of the graph.
func (g DependencyGraph) Clone() DependencyGraph {
	if len(g) == 0 {
		return nil
	}
	out := make(DependencyGraph, len(g))
	for key, deps := range g {
		if len(deps) == 0 {
			out[key] = nil
			continue
		}
		clone := make([]string, len(deps))
		copy(clone, deps)
		out[key] = clone
	}
	return out
}

// Catalog is the static module table consumed by the selector, resolver and
// engine: keyword rules, target rules, the fallback set, the dependency graph,
// the priority list and per-module section ownership. It is data only.
type Catalog struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name,omitempty" yaml:"name,omitempty"`
	DefaultObjective string            `json:"default_objective,omitempty" yaml:"default_objective,omitempty"`
	Priority         []string          `json:"priority,omitempty" yaml:"priority,omitempty"`
	Modules          []ModuleEntry     `json:"modules" yaml:"modules"`
	Graph            DependencyGraph   `json:"graph,omitempty" yaml:"graph,omitempty"`
	Keywords         []KeywordRule     `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Targets          []TargetRule      `json:"targets,omitempty" yaml:"targets,omitempty"`
	Fallback         []string          `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Suggestions      []SuggestionEntry `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

// ModuleEntry is the static specification of one catalogued module.
type ModuleEntry struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Section     string   `json:"section" yaml:"section"`
	Writes      []string `json:"writes,omitempty" yaml:"writes,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Owns reports whether the module declares section among the ones it writes.
func (m ModuleEntry) Owns(section string) bool {
	for _, s := range m.Writes {
		if s == section {
			return true
		}
	}
	return false
}

// KeywordRule selects modules when an objective contains a keyword or matches
// a regular expression. Exactly one of Contains and Pattern must be set.
type KeywordRule struct {
	Contains string   `json:"contains,omitempty" yaml:"contains,omitempty"`
	Pattern  string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Modules  []string `json:"modules" yaml:"modules"`
}

// Label returns a human readable name for the rule.
func (r KeywordRule) Label() string {
	if r.Contains != "" {
		return "contains:" + r.Contains
	}
	return "pattern:" + r.Pattern
}

// TargetRule selects modules when a target bucket is non-empty.
type TargetRule struct {
	Bucket  string   `json:"bucket" yaml:"bucket"`
	Modules []string `json:"modules" yaml:"modules"`
}

// SuggestionEntry lists, in rank order, the modules able to enrich a section.
type SuggestionEntry struct {
	Section string   `json:"section" yaml:"section"`
	Modules []string `json:"modules" yaml:"modules"`
}

// Clone returns a deep copy of the catalog.
func (c Catalog) Clone() Catalog {
	clone := Catalog{
		ID:               c.ID,
		Name:             c.Name,
		DefaultObjective: c.DefaultObjective,
		Priority:         cloneStringSlice(c.Priority),
		Graph:            c.Graph.Clone(),
		Fallback:         cloneStringSlice(c.Fallback),
	}
	if len(c.Modules) > 0 {
		clone.Modules = make([]ModuleEntry, len(c.Modules))
		for i, m := range c.Modules {
			clone.Modules[i] = m.Clone()
		}
	}
	for _, rule := range c.Keywords {
		clone.Keywords = append(clone.Keywords, KeywordRule{Contains: rule.Contains, Pattern: rule.Pattern, Modules: cloneStringSlice(rule.Modules)})
	}
	for _, rule := range c.Targets {
		clone.Targets = append(clone.Targets, TargetRule{Bucket: rule.Bucket, Modules: cloneStringSlice(rule.Modules)})
	}
	for _, entry := range c.Suggestions {
		clone.Suggestions = append(clone.Suggestions, SuggestionEntry{Section: entry.Section, Modules: cloneStringSlice(entry.Modules)})
	}
	return clone
}

// Clone returns a deep copy of the module entry.
func (m ModuleEntry) Clone() ModuleEntry {
	return ModuleEntry{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Section:     m.Section,
		Writes:      cloneStringSlice(m.Writes),
		DependsOn:   cloneStringSlice(m.DependsOn),
	}
}

// Validate ensures the catalog is self-consistent. Dependency cycles are not
// rejected here; the resolver tolerates them.
func (c Catalog) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidCatalog)
	}
	if len(c.Modules) == 0 {
		return fmt.Errorf("%w: catalog %s declares no modules", ErrInvalidCatalog, c.ID)
	}
	seen := map[string]struct{}{}
	for idx, m := range c.Modules {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("%w: catalog %s module[%d]: id is required", ErrInvalidCatalog, c.ID, idx)
		}
		if _, exists := seen[m.ID]; exists {
			return fmt.Errorf("%w: catalog %s: duplicate module %s", ErrInvalidCatalog, c.ID, m.ID)
		}
		seen[m.ID] = struct{}{}
		if strings.TrimSpace(m.Section) == "" {
			return fmt.Errorf("%w: catalog %s module %s: section is required", ErrInvalidCatalog, c.ID, m.ID)
		}
		if hasDuplicates(m.DependsOn) {
			return fmt.Errorf("%w: catalog %s module %s has duplicate dependencies", ErrInvalidCatalog, c.ID, m.ID)
		}
	}
	for key, deps := range c.Graph {
		if _, ok := seen[key]; !ok {
			return fmt.Errorf("%w: catalog %s: graph references unknown module %s", ErrInvalidCatalog, c.ID, key)
		}
		for _, dep := range deps {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("%w: catalog %s: graph dependency %s -> %s references unknown module", ErrInvalidCatalog, c.ID, key, dep)
			}
		}
	}
	for idx, rule := range c.Keywords {
		hasContains := strings.TrimSpace(rule.Contains) != ""
		hasPattern := strings.TrimSpace(rule.Pattern) != ""
		if hasContains == hasPattern {
			return fmt.Errorf("%w: catalog %s keywords[%d]: exactly one of contains or pattern is required", ErrInvalidCatalog, c.ID, idx)
		}
		if hasPattern {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				return fmt.Errorf("%w: catalog %s keywords[%d]: %v", ErrInvalidCatalog, c.ID, idx, err)
			}
		}
		if len(rule.Modules) == 0 {
			return fmt.Errorf("%w: catalog %s keywords[%d]: modules are required", ErrInvalidCatalog, c.ID, idx)
		}
	}
	for idx, rule := range c.Targets {
		if !target.ValidBucket(rule.Bucket) {
			return fmt.Errorf("%w: catalog %s targets[%d]: unknown bucket %q", ErrInvalidCatalog, c.ID, idx, rule.Bucket)
		}
		if len(rule.Modules) == 0 {
			return fmt.Errorf("%w: catalog %s targets[%d]: modules are required", ErrInvalidCatalog, c.ID, idx)
		}
	}
	if len(c.Fallback) == 0 {
		return fmt.Errorf("%w: catalog %s: fallback modules are required", ErrInvalidCatalog, c.ID)
	}
	sections := map[string]struct{}{}
	for idx, entry := range c.Suggestions {
		if strings.TrimSpace(entry.Section) == "" {
			return fmt.Errorf("%w: catalog %s suggestions[%d]: section is required", ErrInvalidCatalog, c.ID, idx)
		}
		if _, dup := sections[entry.Section]; dup {
			return fmt.Errorf("%w: catalog %s: duplicate suggestion section %s", ErrInvalidCatalog, c.ID, entry.Section)
		}
		sections[entry.Section] = struct{}{}
	}
	return nil
}

// Normalized clones the catalog, merges inline module dependencies into the
// graph, defaults each module's writes to its section, and validates the result.
func (c Catalog) Normalized() (Catalog, error) {
	clone := c.Clone()
	if clone.Graph == nil {
		clone.Graph = DependencyGraph{}
	}
	if strings.TrimSpace(clone.DefaultObjective) == "" {
		clone.DefaultObjective = target.DefaultObjective
	}
	for i, m := range clone.Modules {
		if len(m.Writes) == 0 && m.Section != "" {
			clone.Modules[i].Writes = []string{m.Section}
		}
		clone.Graph[m.ID] = mergeDependencies(clone.Graph[m.ID], m.DependsOn)
	}
	if err := clone.Validate(); err != nil {
		return Catalog{}, err
	}
	return clone, nil
}

// Module returns the catalog entry for id.
func (c Catalog) Module(id string) (ModuleEntry, bool) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return ModuleEntry{}, false
}

// ModuleIDs returns module identifiers in declaration order.
func (c Catalog) ModuleIDs() []string {
	ids := make([]string, 0, len(c.Modules))
	for _, m := range c.Modules {
		ids = append(ids, m.ID)
	}
	return ids
}

// Dependencies returns the dependency list for a module.
func (c Catalog) Dependencies(id string) []string {
	if c.Graph == nil {
		return nil
	}
	return cloneStringSlice(c.Graph[id])
}

// SectionModules returns the section -> ranked candidate table used by the
// suggestion engine.
func (c Catalog) SectionModules() map[string][]string {
	out := make(map[string][]string, len(c.Suggestions))
	for _, entry := range c.Suggestions {
		out[entry.Section] = cloneStringSlice(entry.Modules)
	}
	return out
}

// mergeDependencies unions two dependency lists, keeping the first-seen order
// so declared dependency order drives the depth-first walk.
func mergeDependencies(existing, adds []string) []string {
	if len(adds) == 0 && len(existing) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, list := range [][]string{existing, adds} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func hasDuplicates(values []string) bool {
	sorted := append([]string{}, values...)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return true
		}
	}
	return false
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}
