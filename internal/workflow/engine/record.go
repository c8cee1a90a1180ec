package engine

import (
	"time"
)

// Status enumerates terminal module outcomes.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
	StatusUnavailable Status = "unavailable"
)

const (
	// SummaryCompleted is recorded for every module whose update was applied.
	SummaryCompleted = "Module executed successfully."
	// SummaryNotFound is recorded when no implementation is registered.
	SummaryNotFound = "Module implementation not found."
	// SummaryUndeclared is recorded when a registered module has no catalog entry.
	SummaryUndeclared = "Module is not declared in the catalog."
	// SectionUnknown is reported for modules the catalog does not describe.
	SectionUnknown = "unknown"
)

// ExecutionRecord is the outcome of one module in a run.
type ExecutionRecord struct {
	Module         string   `json:"module"`
	Status         Status   `json:"status"`
	Summary        string   `json:"summary"`
	ProfileSection string   `json:"profile_section"`
	OutputKeys     []string `json:"output_keys"`
}

// RunState carries run timing.
type RunState struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationS   float64   `json:"duration_s"`
}

// OrchestrationRecord summarises one orchestration run.
type OrchestrationRecord struct {
	RunID           string            `json:"run_id,omitempty"`
	Objectives      []string          `json:"objectives"`
	SelectedModules []string          `json:"selected_modules"`
	ExecutionOrder  []string          `json:"execution_order"`
	ModuleResults   []ExecutionRecord `json:"module_results"`
	Diagnostics     []string          `json:"diagnostics"`
	State           RunState          `json:"state"`
}

// BuildRecord assembles the orchestration record. It performs no validation.
func BuildRecord(runID string, objectives, selected, order []string, results []ExecutionRecord, diagnostics []string, started, completed time.Time) OrchestrationRecord {
	return OrchestrationRecord{
		RunID:           runID,
		Objectives:      nonNil(objectives),
		SelectedModules: nonNil(selected),
		ExecutionOrder:  nonNil(order),
		ModuleResults:   nonNilResults(results),
		Diagnostics:     nonNil(diagnostics),
		State: RunState{
			StartedAt:   started.UTC(),
			CompletedAt: completed.UTC(),
			DurationS:   completed.Sub(started).Seconds(),
		},
	}
}

// Count returns how many module results have the given status.
func (r OrchestrationRecord) Count(status Status) int {
	n := 0
	for _, result := range r.ModuleResults {
		if result.Status == status {
			n++
		}
	}
	return n
}

// Completed lists modules whose updates were applied, in execution order.
func (r OrchestrationRecord) Completed() []string {
	var ids []string
	for _, result := range r.ModuleResults {
		if result.Status == StatusCompleted {
			ids = append(ids, result.Module)
		}
	}
	return ids
}

// ProfileSection renders the record as the plain map stored under the
// profile's orchestration section.
func (r OrchestrationRecord) ProfileSection() map[string]any {
	results := make([]any, 0, len(r.ModuleResults))
	for _, rec := range r.ModuleResults {
		results = append(results, map[string]any{
			"module":          rec.Module,
			"status":          string(rec.Status),
			"summary":         rec.Summary,
			"profile_section": rec.ProfileSection,
			"output_keys":     toAny(rec.OutputKeys),
		})
	}
	section := map[string]any{
		"objectives":       toAny(r.Objectives),
		"selected_modules": toAny(r.SelectedModules),
		"execution_order":  toAny(r.ExecutionOrder),
		"module_results":   results,
		"diagnostics":      toAny(r.Diagnostics),
		"state": map[string]any{
			"started_at":   formatTimestamp(r.State.StartedAt),
			"completed_at": formatTimestamp(r.State.CompletedAt),
			"duration_s":   r.State.DurationS,
		},
	}
	if r.RunID != "" {
		section["run_id"] = r.RunID
	}
	return section
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string{}, values...)
}

func nonNilResults(values []ExecutionRecord) []ExecutionRecord {
	if values == nil {
		return []ExecutionRecord{}
	}
	return append([]ExecutionRecord{}, values...)
}
