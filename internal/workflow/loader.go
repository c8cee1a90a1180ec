package workflow

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// DefaultCatalog returns the embedded OSINT module catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalogYAML(defaultCatalogYAML)
}

// ParseCatalogYAML decodes a catalog from YAML/JSON bytes.
func ParseCatalogYAML(data []byte) (Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Catalog{}, fmt.Errorf("%w: payload is empty", ErrInvalidCatalog)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	return c.Normalized()
}

// LoadCatalogReader reads catalog data from an io.Reader.
func LoadCatalogReader(r io.Reader) (Catalog, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Catalog{}, fmt.Errorf("workflow: read catalog: %w", err)
	}
	return ParseCatalogYAML(content)
}

// LoadCatalogFile loads a catalog from an explicit file path.
func LoadCatalogFile(path string) (Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	c, parseErr := ParseCatalogYAML(content)
	if parseErr != nil {
		return Catalog{}, fmt.Errorf("workflow: %s: %w", path, parseErr)
	}
	return c, nil
}
