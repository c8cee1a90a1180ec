package skiptracer

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

var dateFields = []string{"date", "last_seen", "updated", "updated_at", "timestamp"}

type sourceEntry struct {
	Name       string
	Category   string
	Results    int
	Confidence float64
}

type summary struct {
	sources      []sourceEntry
	accounts     []map[string]any
	locations    []map[string]any
	associations []map[string]any
	correlations []map[string]any
	breaches     int
	timestamps   []time.Time
}

func (s *summary) add(id Identifier, name, category string, payload any) {
	confidence, ok := categoryConfidence[category]
	if !ok {
		confidence = categoryConfidence["unknown"]
	}
	count := countRecords(payload)
	if count > 0 {
		s.sources = append(s.sources, sourceEntry{Name: name, Category: category, Results: count, Confidence: confidence})
		s.correlations = append(s.correlations, map[string]any{
			"identifier": id.Normalized,
			"source":     category,
			"field":      "signals",
			"confidence": confidence,
		})
	}
	if category == "breach" {
		s.breaches += count
	}
	walk(payload, func(node map[string]any) {
		if platform, handle, link := first(node, "platform", "site", "service"), first(node, "username", "handle", "user"), first(node, "url", "profile"); platform != "" || handle != "" || link != "" {
			if platform == "" {
				platform = "unknown"
			}
			s.accounts = append(s.accounts, map[string]any{
				"platform": platform, "handle": handle, "url": link,
				"source": sourceOf(node), "confidence": boosted(node, 0.5),
			})
		}
		city, state, country := first(node, "city"), first(node, "state", "region"), first(node, "country")
		if label := first(node, "location", "address"); city != "" || state != "" || country != "" || label != "" {
			s.locations = append(s.locations, map[string]any{
				"label": label, "city": city, "state": state, "country": country,
				"source": sourceOf(node), "confidence": boosted(node, 0.45),
			})
		}
		name, relationship := first(node, "name", "entity", "company"), first(node, "relationship", "relation", "role")
		if name != "" || relationship != "" {
			if relationship == "" {
				relationship = "associated"
			}
			s.associations = append(s.associations, map[string]any{
				"name": name, "relationship": relationship,
				"source": sourceOf(node), "confidence": boosted(node, 0.4),
			})
		}
		for key, value := range node {
			text, ok := value.(string)
			if !ok || !isDateField(key) {
				continue
			}
			if ts, ok := parseTimestamp(text); ok {
				s.timestamps = append(s.timestamps, ts)
			}
		}
	})
}

// scores grades completeness, freshness and breach risk on a 0-100 scale.
func (s *summary) scores(now time.Time) map[string]any {
	completeness := 0.0
	if len(s.accounts) > 0 {
		completeness += 40
	}
	if len(s.locations) > 0 {
		completeness += 30
	}
	if len(s.associations) > 0 {
		completeness += 30
	}
	freshness := 0.0
	if len(s.timestamps) > 0 {
		newest := s.timestamps[0]
		for _, ts := range s.timestamps[1:] {
			if ts.After(newest) {
				newest = ts
			}
		}
		age := math.Max(0, now.Sub(newest).Hours()/24)
		switch {
		case age <= 30:
			freshness = 90
		case age <= 180:
			freshness = 65
		case age <= 365:
			freshness = 45
		default:
			freshness = 25
		}
	}
	risk := math.Min(100, float64(s.breaches)*12)
	if s.breaches > 0 && risk < 25 {
		risk = 25
	}
	return map[string]any{"completeness": completeness, "freshness": freshness, "risk": risk}
}

func (s *summary) sourceList() []any {
	index := map[string]int{}
	var merged []sourceEntry
	for _, entry := range s.sources {
		key := entry.Name + "\x00" + entry.Category
		if i, ok := index[key]; ok {
			merged[i].Results = max(merged[i].Results, entry.Results)
			merged[i].Confidence = math.Max(merged[i].Confidence, entry.Confidence)
			continue
		}
		index[key] = len(merged)
		merged = append(merged, entry)
	}
	out := make([]any, 0, len(merged))
	for _, entry := range merged {
		out = append(out, map[string]any{"name": entry.Name, "category": entry.Category, "results": entry.Results, "confidence": entry.Confidence})
	}
	return out
}

// dedupeSignals keeps the highest-confidence entry per key field value.
func dedupeSignals(entries []map[string]any, field string) []any {
	index := map[string]int{}
	out := []any{}
	for _, entry := range entries {
		key := strings.ToLower(entry[field].(string))
		if key == "" {
			encoded, _ := json.Marshal(entry)
			key = string(encoded)
		}
		if i, ok := index[key]; ok {
			if entry["confidence"].(float64) > out[i].(map[string]any)["confidence"].(float64) {
				out[i] = entry
			}
			continue
		}
		index[key] = len(out)
		out = append(out, entry)
	}
	return out
}

func dedupeCorrelations(entries []map[string]any) []any {
	seen := map[string]struct{}{}
	out := []any{}
	for _, entry := range entries {
		key := entry["identifier"].(string) + "\x00" + entry["source"].(string) + "\x00" + entry["field"].(string)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func countRecords(payload any) int {
	switch v := payload.(type) {
	case nil:
		return 0
	case []any:
		return len(v)
	case map[string]any:
		if results, ok := v["results"].([]any); ok {
			return len(results)
		}
		return len(v)
	default:
		return 1
	}
}

func walk(value any, visit func(map[string]any)) {
	switch v := value.(type) {
	case map[string]any:
		visit(v)
		for _, nested := range v {
			walk(nested, visit)
		}
	case []any:
		for _, item := range v {
			walk(item, visit)
		}
	}
}

func first(node map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := node[key]; ok && value != nil {
			if text, isString := value.(string); isString {
				if text != "" {
					return text
				}
				continue
			}
			if _, nested := value.(map[string]any); nested {
				continue
			}
			if _, nested := value.([]any); nested {
				continue
			}
			if b, isBool := value.(bool); isBool && !b {
				continue
			}
			encoded, _ := json.Marshal(value)
			return string(encoded)
		}
	}
	return ""
}

func sourceOf(node map[string]any) string {
	if source := first(node, "source"); source != "" {
		return source
	}
	return "skiptracer"
}

func boosted(node map[string]any, base float64) float64 {
	source := strings.ToLower(first(node, "source"))
	boost := 0.05
	switch {
	case strings.Contains(source, "social"):
		boost = 0.25
	case strings.Contains(source, "public"):
		boost = 0.2
	case strings.Contains(source, "breach"), strings.Contains(source, "leak"):
		boost = 0.15
	}
	return math.Round(math.Min(1, base+boost)*100) / 100
}

func isDateField(key string) bool {
	lowered := strings.ToLower(key)
	for _, field := range dateFields {
		if strings.Contains(lowered, field) {
			return true
		}
	}
	return false
}

func parseTimestamp(text string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, strings.TrimSpace(text)); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
