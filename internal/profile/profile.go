// Package profile models the shared investigation document that enrichment
// modules read and write. A profile is a mapping of section name to an
// arbitrary structured value; the core never enforces cross-section
// invariants.
package profile

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Well-known section names used by the planner and the orchestrator.
const (
	SectionIdentity      = "identity"
	SectionContact       = "contact"
	SectionDigital       = "digital"
	SectionBusiness      = "business"
	SectionLegal         = "legal"
	SectionMetadata      = "metadata"
	SectionSocial        = "social"
	SectionGeo           = "geo"
	SectionRisk          = "risk"
	SectionEnrichment    = "enrichment"
	SectionIntelligence  = "intelligence"
	SectionOrchestration = "orchestration"
)

// Profile is the document accumulating all investigation results.
type Profile map[string]any

// Update is a partial document returned by a module, keyed by section.
type Update map[string]any

// Keys returns the update's section names in sorted order.
func (u Update) Keys() []string {
	if len(u) == 0 {
		return []string{}
	}
	keys := make([]string, 0, len(u))
	for key := range u {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Section returns the mapping stored under name. The boolean is false when
// the section is absent, nil, or not a mapping.
func (p Profile) Section(name string) (map[string]any, bool) {
	raw, ok := p[name]
	if !ok || raw == nil {
		return nil, false
	}
	section, ok := asMap(raw)
	return section, ok
}

// Has reports whether a non-nil value is stored under name.
func (p Profile) Has(name string) bool {
	raw, ok := p[name]
	return ok && raw != nil
}

// String returns section.field as a trimmed string, or "" when absent.
func (p Profile) String(section, field string) string {
	values, ok := p.Section(section)
	if !ok {
		return ""
	}
	raw, ok := values[field]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Strings returns section.field as a list of strings. Scalars become a
// single-element list; nil and empty entries are dropped, everything else is
// kept verbatim (stringified).
func (p Profile) Strings(section, field string) []string {
	values, ok := p.Section(section)
	if !ok {
		return nil
	}
	return toStrings(values[field])
}

// List returns section.field as a slice of arbitrary values.
func (p Profile) List(section, field string) []any {
	values, ok := p.Section(section)
	if !ok {
		return nil
	}
	return asList(values[field])
}

// Clone returns a deep copy of the profile. Modules execute against clones so
// a failing module cannot leave the live document half-mutated.
func (p Profile) Clone() Profile {
	if p == nil {
		return nil
	}
	out := make(Profile, len(p))
	for key, value := range p {
		out[key] = cloneValue(value)
	}
	return out
}

// Apply merges an update into the profile. Mapping sections are merged field
// by field and the update wins on conflicts; any other payload replaces the
// section outright.
func (p Profile) Apply(update Update) {
	for section, payload := range update {
		incoming, incomingIsMap := asMap(payload)
		existing, existingIsMap := p.Section(section)
		if !incomingIsMap || !existingIsMap {
			p[section] = cloneValue(payload)
			continue
		}
		merged := make(map[string]any, len(existing)+len(incoming))
		for key, value := range existing {
			merged[key] = value
		}
		for key, value := range incoming {
			merged[key] = cloneValue(value)
		}
		p[section] = merged
	}
}

// IsEmpty reports whether a value carries no information: nil, empty string,
// empty sequence, or empty mapping.
func IsEmpty(value any) bool {
	if value == nil {
		return true
	}
	switch v := value.(type) {
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Profile:
		return map[string]any(v), true
	case Update:
		return map[string]any(v), true
	case map[string]string:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = item
		}
		return out, true
	}
	return nil, false
}

func asList(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	}
	return []any{value}
}

func toStrings(value any) []string {
	items := asList(value)
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		var text string
		if s, ok := item.(string); ok {
			text = s
		} else {
			text = fmt.Sprint(item)
		}
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case Profile:
		return map[string]any(v.Clone())
	case Update:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	}
	return value
}
