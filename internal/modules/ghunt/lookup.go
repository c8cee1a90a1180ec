package ghunt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Account is the public metadata GHunt returns for a Google account.
type Account struct {
	Found           bool
	PersonID        string
	Container       string
	Apps            []string
	LastUpdated     time.Time
	ProfilePhotoURL string
	CoverPhotoURL   string
	MapsStatus      string
	MapsStats       map[string]int
	MapsReviews     int
	MapsPhotos      int
}

// Lookup resolves an e-mail address to a Google account.
type Lookup interface {
	Lookup(ctx context.Context, email string) (Account, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(ctx context.Context, email string) (Account, error)

// Lookup implements Lookup.
func (f LookupFunc) Lookup(ctx context.Context, email string) (Account, error) {
	return f(ctx, email)
}

// CLI runs `ghunt email <address> --json <file>` and decodes the export.
type CLI struct {
	Binary string
}

// Lookup implements Lookup.
func (c CLI) Lookup(ctx context.Context, email string) (Account, error) {
	dir, err := os.MkdirTemp("", "ghunt-*")
	if err != nil {
		return Account{}, fmt.Errorf("ghunt: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "result.json")
	cmd := exec.CommandContext(ctx, c.Binary, "email", email, "--json", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return Account{}, fmt.Errorf("ghunt: %w: %s", err, truncate(string(output), 500))
	}
	data, err := os.ReadFile(out)
	if errors.Is(err, os.ErrNotExist) {
		return Account{Found: false}, nil
	}
	if err != nil {
		return Account{}, fmt.Errorf("ghunt: read export: %w", err)
	}
	return ParseExport(data)
}

type photo struct {
	URL       string `json:"url"`
	IsDefault bool   `json:"isDefault"`
}

type export struct {
	Profile struct {
		PersonID          string           `json:"personId"`
		ProfilePhotos     map[string]photo `json:"profilePhotos"`
		CoverPhotos       map[string]photo `json:"coverPhotos"`
		SourceIDs         map[string]struct {
			LastUpdated string `json:"lastUpdated"`
		} `json:"sourceIds"`
		InAppReachability map[string]struct {
			Apps []string `json:"apps"`
		} `json:"inAppReachability"`
	} `json:"PROFILE_CONTAINER"`
	Maps *struct {
		Status  string         `json:"status"`
		Stats   map[string]int `json:"stats"`
		Reviews []any          `json:"reviews"`
		Photos  []any          `json:"photos"`
	} `json:"maps"`
}

// ParseExport decodes a GHunt JSON export.
func ParseExport(data []byte) (Account, error) {
	var doc export
	if err := json.Unmarshal(data, &doc); err != nil {
		return Account{}, fmt.Errorf("ghunt: decode export: %w", err)
	}
	p := doc.Profile
	if p.PersonID == "" {
		return Account{Found: false}, nil
	}
	account := Account{Found: true, PersonID: p.PersonID, MapsStatus: "skipped"}
	container := "PROFILE"
	if _, ok := p.SourceIDs[container]; !ok {
		container = ""
		for key := range p.SourceIDs {
			if container == "" || key < container {
				container = key
			}
		}
	}
	account.Container = container
	if container != "" {
		if ph, ok := p.ProfilePhotos[container]; ok && !ph.IsDefault {
			account.ProfilePhotoURL = ph.URL
		}
		if ph, ok := p.CoverPhotos[container]; ok && !ph.IsDefault {
			account.CoverPhotoURL = ph.URL
		}
		if src, ok := p.SourceIDs[container]; ok && src.LastUpdated != "" {
			if ts, err := time.Parse(time.RFC3339Nano, src.LastUpdated); err == nil {
				account.LastUpdated = ts
			}
		}
		if reach, ok := p.InAppReachability[container]; ok {
			account.Apps = append([]string{}, reach.Apps...)
		}
	}
	if doc.Maps != nil {
		account.MapsStatus = doc.Maps.Status
		account.MapsStats = doc.Maps.Stats
		account.MapsReviews = len(doc.Maps.Reviews)
		account.MapsPhotos = len(doc.Maps.Photos)
	}
	return account, nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
