package schema

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ValidateSection checks a partial section payload against the section's
// property types. Required fields are not enforced because module updates are
// partial by nature. Unknown sections are rejected.
func (s *Schema) ValidateSection(name string, payload any) error {
	section, ok := s.Section(name)
	if !ok {
		return fmt.Errorf("schema: unknown section %q", name)
	}
	errs := section.validate(payload)
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func (s Section) validate(payload any) []error {
	if payload == nil {
		return nil
	}
	if s.Type != "" && !matchesType(s.Type, payload) {
		return []error{fmt.Errorf("%s should be of type %q", s.Name, s.Type)}
	}
	fields, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	var errs []error
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		prop, ok := s.Property(key)
		if !ok || len(prop.Types) == 0 {
			continue
		}
		if !matchesAny(prop.Types, fields[key]) {
			errs = append(errs, fmt.Errorf("%s.%s should be of type %q", s.Name, key, prop.Types[0]))
		}
	}
	return errs
}

func matchesAny(types []string, value any) bool {
	for _, t := range types {
		if matchesType(t, value) {
			return true
		}
	}
	return false
}

func matchesType(t string, value any) bool {
	switch t {
	case "null":
		return value == nil
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == math.Trunc(v)
		}
		return false
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		switch value.(type) {
		case []any, []string, []map[string]any:
			return true
		}
		return false
	}
	// Unknown type keywords are not enforced.
	return true
}
