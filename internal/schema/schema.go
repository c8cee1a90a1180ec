// Package schema loads the profile document schema and derives the
// per-section requirement index used for gap analysis. Only field presence and
// shallow property types are checked; nested structures are opaque.
package schema

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSchema marks configuration errors in a schema document.
var ErrInvalidSchema = errors.New("schema: invalid document")

//go:embed profile_schema.yaml
var defaultSchemaYAML []byte

// Property describes a single field inside a section.
type Property struct {
	Name  string
	Types []string
}

// Section describes one top-level partition of the profile.
type Section struct {
	Name       string
	Type       string
	Required   []string
	Properties []Property
}

// Property returns the named property definition.
func (s Section) Property(name string) (Property, bool) {
	for _, prop := range s.Properties {
		if prop.Name == name {
			return prop, true
		}
	}
	return Property{}, false
}

// Schema is an ordered set of section definitions.
type Schema struct {
	Sections []Section
}

// Section returns the named section definition.
func (s *Schema) Section(name string) (Section, bool) {
	if s == nil {
		return Section{}, false
	}
	for _, section := range s.Sections {
		if section.Name == name {
			return section, true
		}
	}
	return Section{}, false
}

// Names returns section names in declaration order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Sections))
	for _, section := range s.Sections {
		names = append(names, section.Name)
	}
	return names
}

// Default returns the embedded profile schema.
func Default() (*Schema, error) {
	return Parse(defaultSchemaYAML)
}

// Load reads a YAML or JSON schema from disk.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a schema document of the form
// {properties: {section: {required: [...], properties: {field: {type: ...}}}}}.
// JSON documents are accepted since they are valid YAML. Section order follows
// the document.
func Parse(data []byte) (*Schema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: payload is empty", ErrInvalidSchema)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidSchema, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: expected a document", ErrInvalidSchema)
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrInvalidSchema)
	}
	props := mappingValue(doc, "properties")
	if props == nil {
		return nil, fmt.Errorf("%w: missing properties", ErrInvalidSchema)
	}
	if props.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: properties must be a mapping", ErrInvalidSchema)
	}
	out := &Schema{}
	seen := map[string]struct{}{}
	for i := 0; i+1 < len(props.Content); i += 2 {
		name := strings.TrimSpace(props.Content[i].Value)
		if name == "" {
			return nil, fmt.Errorf("%w: section name is empty", ErrInvalidSchema)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate section %s", ErrInvalidSchema, name)
		}
		seen[name] = struct{}{}
		section, err := parseSection(name, props.Content[i+1])
		if err != nil {
			return nil, err
		}
		out.Sections = append(out.Sections, section)
	}
	if len(out.Sections) == 0 {
		return nil, fmt.Errorf("%w: no sections declared", ErrInvalidSchema)
	}
	return out, nil
}

type rawSection struct {
	Type     string   `yaml:"type"`
	Required []string `yaml:"required"`
}

func parseSection(name string, node *yaml.Node) (Section, error) {
	if node.Kind != yaml.MappingNode {
		return Section{}, fmt.Errorf("%w: section %s must be a mapping", ErrInvalidSchema, name)
	}
	var raw rawSection
	if err := node.Decode(&raw); err != nil {
		return Section{}, fmt.Errorf("%w: section %s: %v", ErrInvalidSchema, name, err)
	}
	section := Section{Name: name, Type: strings.TrimSpace(raw.Type)}
	seen := map[string]struct{}{}
	for idx, field := range raw.Required {
		field = strings.TrimSpace(field)
		if field == "" {
			return Section{}, fmt.Errorf("%w: section %s required[%d] is empty", ErrInvalidSchema, name, idx)
		}
		if _, dup := seen[field]; dup {
			return Section{}, fmt.Errorf("%w: section %s requires %s twice", ErrInvalidSchema, name, field)
		}
		seen[field] = struct{}{}
		section.Required = append(section.Required, field)
	}
	props := mappingValue(node, "properties")
	if props == nil {
		return section, nil
	}
	if props.Kind != yaml.MappingNode {
		return Section{}, fmt.Errorf("%w: section %s properties must be a mapping", ErrInvalidSchema, name)
	}
	for i := 0; i+1 < len(props.Content); i += 2 {
		prop := Property{Name: props.Content[i].Value}
		if typeNode := mappingValue(props.Content[i+1], "type"); typeNode != nil {
			types, err := decodeTypes(typeNode)
			if err != nil {
				return Section{}, fmt.Errorf("%w: %s.%s: %v", ErrInvalidSchema, name, prop.Name, err)
			}
			prop.Types = types
		}
		section.Properties = append(section.Properties, prop)
	}
	return section, nil
}

func decodeTypes(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(node.Value) == "" {
			return nil, nil
		}
		return []string{strings.TrimSpace(node.Value)}, nil
	case yaml.SequenceNode:
		var types []string
		if err := node.Decode(&types); err != nil {
			return nil, err
		}
		return types, nil
	}
	return nil, fmt.Errorf("type must be a string or list")
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
