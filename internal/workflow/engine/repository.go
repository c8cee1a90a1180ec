package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// RunStore persists orchestration records per subject (typically the
// profile path) and answers the "which modules already ran" question used
// by the suggestion engine.
type RunStore interface {
	SaveRun(ctx context.Context, subject string, record OrchestrationRecord) error
	Runs(ctx context.Context, subject string, limit int) ([]OrchestrationRecord, error)
	ExecutedModules(ctx context.Context, subject string) ([]string, error)
	Close() error
}

// StoredRun pairs a record with the subject it was recorded for.
type StoredRun struct {
	Subject string              `json:"subject"`
	Record  OrchestrationRecord `json:"record"`
}

type repositoryState struct {
	Runs []StoredRun `json:"runs"`
}

// Repository stores run records in a single JSON file.
type Repository struct {
	mu   sync.Mutex
	path string
}

// NewRepository creates a repository backed by the file at path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Path returns the backing file path.
func (r *Repository) Path() string {
	return r.path
}

// SaveRun appends a record for subject.
func (r *Repository) SaveRun(_ context.Context, subject string, record OrchestrationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.load()
	if err != nil {
		return err
	}
	state.Runs = append(state.Runs, StoredRun{Subject: subject, Record: record})
	return r.save(state)
}

// Runs returns the most recent records for subject, newest first. A limit
// <= 0 returns every record.
func (r *Repository) Runs(_ context.Context, subject string, limit int) ([]OrchestrationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.load()
	if err != nil {
		return nil, err
	}
	var out []OrchestrationRecord
	for i := len(state.Runs) - 1; i >= 0; i-- {
		if state.Runs[i].Subject != subject {
			continue
		}
		out = append(out, state.Runs[i].Record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ExecutedModules returns the sorted set of modules that completed in any
// recorded run for subject.
func (r *Repository) ExecutedModules(ctx context.Context, subject string) ([]string, error) {
	runs, err := r.Runs(ctx, subject, 0)
	if err != nil {
		return nil, err
	}
	return CompletedModules(runs), nil
}

// Close implements RunStore.
func (r *Repository) Close() error {
	return nil
}

// CompletedModules collects the distinct completed module ids across records.
func CompletedModules(records []OrchestrationRecord) []string {
	seen := map[string]struct{}{}
	for _, rec := range records {
		for _, id := range rec.Completed() {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Repository) load() (repositoryState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return repositoryState{}, nil
		}
		return repositoryState{}, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return repositoryState{}, nil
	}
	var state repositoryState
	if err := json.Unmarshal(data, &state); err != nil {
		return repositoryState{}, err
	}
	return state, nil
}

// save writes the state with best-effort atomicity.
func (r *Repository) save(state repositoryState) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
