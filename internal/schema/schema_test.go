package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultSchemaParses(t *testing.T) {
	s, err := Default()
	if err != nil {
		t.Fatalf("default schema: %v", err)
	}
	names := s.Names()
	if len(names) == 0 || names[0] != "identity" {
		t.Fatalf("unexpected section order: %v", names)
	}
	required, ok := s.Requirements().Required("identity")
	if !ok {
		t.Fatalf("identity missing from requirement index")
	}
	if diff := cmp.Diff([]string{"full_name", "dob"}, required); diff != "" {
		t.Fatalf("identity requirements (-want +got):\n%s", diff)
	}
}

func TestParsePreservesOrderFromJSON(t *testing.T) {
	doc := `{"properties": {
		"zeta": {"required": ["a"]},
		"alpha": {"required": [], "properties": {"x": {"type": ["string", "null"]}}}
	}}`
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha"}, s.Names()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	alpha, _ := s.Section("alpha")
	prop, ok := alpha.Property("x")
	if !ok {
		t.Fatalf("property x missing")
	}
	if diff := cmp.Diff([]string{"string", "null"}, prop.Types); diff != "" {
		t.Fatalf("types mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":              "",
		"scalar":             "just text",
		"no properties":      "type: object",
		"properties list":    "properties: [a, b]",
		"section scalar":     "properties:\n  identity: nope",
		"blank required":     "properties:\n  identity:\n    required: [\"\"]",
		"duplicate required": "properties:\n  identity:\n    required: [a, a]",
		"no sections":        "properties: {}",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidSchema) {
			t.Fatalf("%s: expected ErrInvalidSchema, got %v", name, err)
		}
	}
}

func TestLoadWrapsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte("properties: {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error mentioning path, got %v", err)
	}
}

func TestValidateSection(t *testing.T) {
	s, err := Default()
	if err != nil {
		t.Fatalf("default schema: %v", err)
	}
	if err := s.ValidateSection("digital", map[string]any{"domains": []any{"a.io"}, "custom": 1}); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if err := s.ValidateSection("risk", map[string]any{"exposure_score": 4.5}); err != nil {
		t.Fatalf("number should validate: %v", err)
	}
	err = s.ValidateSection("digital", map[string]any{"domains": "a.io", "ips": 7})
	if err == nil {
		t.Fatalf("expected type errors")
	}
	if !strings.Contains(err.Error(), "digital.domains") || !strings.Contains(err.Error(), "digital.ips") {
		t.Fatalf("expected both fields reported, got %v", err)
	}
	if err := s.ValidateSection("digital", []any{"x"}); err == nil {
		t.Fatalf("expected object type error for list payload")
	}
	if err := s.ValidateSection("nope", map[string]any{}); err == nil {
		t.Fatalf("expected unknown section error")
	}
}
