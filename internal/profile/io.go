package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads a JSON profile from disk.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSON profile document. An empty payload yields an empty
// profile.
func Parse(data []byte) (Profile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Profile{}, nil
	}
	var doc Profile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}
	if doc == nil {
		doc = Profile{}
	}
	return doc, nil
}

// Save writes the profile as indented JSON, creating parent directories.
func Save(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: encode: %w", err)
	}
	return os.WriteFile(path, append(encoded, '\n'), 0o644)
}
