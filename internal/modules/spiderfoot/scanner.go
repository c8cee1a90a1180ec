package spiderfoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Target is one scan seed with its SpiderFoot entity type.
type Target struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Event is one result row of a scan.
type Event struct {
	Type       string
	Data       string
	Source     string
	Module     string
	Confidence float64
}

// Scanner runs one SpiderFoot scan.
type Scanner interface {
	Scan(ctx context.Context, target Target, useCase string, modules []string) ([]Event, error)
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(ctx context.Context, target Target, useCase string, modules []string) ([]Event, error)

// Scan implements Scanner.
func (f ScannerFunc) Scan(ctx context.Context, target Target, useCase string, modules []string) ([]Event, error) {
	return f(ctx, target, useCase, modules)
}

// CLI runs `sf.py -s <target> -o json -q` with either a module list or a use
// case and decodes the JSON written to stdout.
type CLI struct {
	Binary string
}

// Scan implements Scanner.
func (c CLI) Scan(ctx context.Context, target Target, useCase string, modules []string) ([]Event, error) {
	args := []string{"-s", target.Value, "-o", "json", "-q"}
	if len(modules) > 0 {
		args = append(args, "-m", strings.Join(modules, ","))
	} else {
		args = append(args, "-u", useCase)
	}
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("spiderfoot: %w: %s", err, truncate(stderr.String(), 500))
	}
	return ParseEvents(stdout.Bytes())
}

type rawEvent struct {
	Type       string   `json:"type"`
	Data       any      `json:"data"`
	Source     string   `json:"source"`
	SourceData string   `json:"source_data"`
	Module     string   `json:"module"`
	Confidence *float64 `json:"confidence"`
}

// ParseEvents decodes SpiderFoot's JSON output. Confidence is reported on a
// 0-100 scale; rows without one count as fully confident. Non-string data is
// kept as its JSON text.
func ParseEvents(data []byte) ([]Event, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Event{}, nil
	}
	var rows []rawEvent
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("spiderfoot: decode output: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		event := Event{Type: row.Type, Module: row.Module, Source: row.Source, Confidence: 100}
		if event.Source == "" {
			event.Source = row.SourceData
		}
		if row.Confidence != nil {
			event.Confidence = *row.Confidence
		}
		switch v := row.Data.(type) {
		case string:
			event.Data = v
		case nil:
		default:
			encoded, _ := json.Marshal(v)
			event.Data = string(encoded)
		}
		events = append(events, event)
	}
	return events, nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
