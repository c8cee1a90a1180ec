package reconng

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	domainPattern = regexp.MustCompile(`^(?:[A-Za-z0-9-]+\.)+[A-Za-z]{2,}$`)
)

// Correlation links two observed values.
type Correlation struct {
	Left       string
	Right      string
	Reason     string
	Confidence float64
}

// Anomaly is a notable signal found in the workspace records.
type Anomaly struct {
	Signal   string
	Severity string
	Details  string
}

// ConfidenceSummary aggregates correlation confidences.
type ConfidenceSummary struct {
	Min     float64
	Max     float64
	Average float64
}

// AsMap renders the summary for the profile.
func (s ConfidenceSummary) AsMap() map[string]any {
	return map[string]any{"min": s.Min, "max": s.Max, "average": s.Average}
}

// Analysis is the correlation pass over a workspace.
type Analysis struct {
	Correlations []Correlation
	Anomalies    []Anomaly
	Summary      ConfidenceSummary
}

// Analyze correlates contact e-mails with discovered domains, flags
// credential and breach exposure, and summarises confidence.
func Analyze(records Records, targetType, targetValue string) Analysis {
	scorer := scorer{targetType: targetType, target: strings.ToLower(targetValue)}
	domains := matching(stringValues(records["domains"]), domainPattern)
	emails := matching(stringValues(records["contacts"]), emailPattern)

	var correlations []Correlation
	for _, email := range emails {
		emailDomain := email[strings.LastIndexByte(email, '@')+1:]
		for _, domain := range domains {
			if emailDomain == domain || strings.HasSuffix(emailDomain, "."+domain) {
				correlations = append(correlations, Correlation{
					Left:       email,
					Right:      domain,
					Reason:     "contact email domain matches discovered domain",
					Confidence: scorer.score(email, domain),
				})
			}
		}
	}
	exposures := append(append([]Row{}, records["credentials"]...), records["breaches"]...)
	for _, value := range stringValues(exposures) {
		value = strings.TrimSpace(value)
		if !emailPattern.MatchString(value) {
			continue
		}
		correlations = append(correlations, Correlation{
			Left:       strings.ToLower(value),
			Right:      targetValue,
			Reason:     "credential/breach entry matches contact email",
			Confidence: scorer.score(value, targetValue),
		})
	}

	return Analysis{
		Correlations: correlations,
		Anomalies:    anomalies(records, emails, correlations, targetType, scorer.target),
		Summary:      summarize(correlations),
	}
}

type scorer struct {
	targetType string
	target     string
}

func (s scorer) score(left, right string) float64 {
	left, right = strings.ToLower(left), strings.ToLower(right)
	score := 0.4
	switch s.targetType {
	case TargetDomain:
		if strings.HasSuffix(right, s.target) {
			score += 0.3
		}
		if at := strings.LastIndexByte(left, '@'); at >= 0 && strings.HasSuffix(left[at+1:], s.target) {
			score += 0.3
		}
	case TargetCompany:
		if strings.Contains(left, s.target) || strings.Contains(right, s.target) {
			score += 0.3
		}
	case TargetContact:
		if strings.Contains(left, s.target) || strings.Contains(right, s.target) {
			score += 0.2
		}
	}
	return round2(math.Min(score, 1.0))
}

func anomalies(records Records, emails []string, correlations []Correlation, targetType, target string) []Anomaly {
	var out []Anomaly
	if n := len(records["breaches"]); n > 0 {
		out = append(out, Anomaly{Signal: "breach_exposure", Severity: "high", Details: fmt.Sprintf("%d breach records identified.", n)})
	}
	if n := len(records["credentials"]); n > 0 {
		out = append(out, Anomaly{Signal: "credential_exposure", Severity: "high", Details: fmt.Sprintf("%d credential records identified.", n)})
	}
	if targetType == TargetDomain {
		offDomain := 0
		for _, email := range emails {
			if !strings.HasSuffix(email, "@"+target) {
				offDomain++
			}
		}
		if offDomain > 0 {
			out = append(out, Anomaly{Signal: "off_domain_contacts", Severity: "medium", Details: fmt.Sprintf("%d contacts use non-target domains.", offDomain)})
		}
	}
	if len(correlations) == 0 {
		out = append(out, Anomaly{Signal: "low_correlation", Severity: "low", Details: "No strong cross-module correlations detected."})
	}
	return out
}

func summarize(correlations []Correlation) ConfidenceSummary {
	if len(correlations) == 0 {
		return ConfidenceSummary{}
	}
	summary := ConfidenceSummary{Min: correlations[0].Confidence, Max: correlations[0].Confidence}
	total := 0.0
	for _, c := range correlations {
		summary.Min = math.Min(summary.Min, c.Confidence)
		summary.Max = math.Max(summary.Max, c.Confidence)
		total += c.Confidence
	}
	summary.Average = round2(total / float64(len(correlations)))
	return summary
}

func (a Analysis) correlationList() []any {
	out := make([]any, 0, len(a.Correlations))
	for _, c := range a.Correlations {
		out = append(out, map[string]any{"left": c.Left, "right": c.Right, "reason": c.Reason, "confidence": c.Confidence})
	}
	return out
}

func (a Analysis) anomalyList() []any {
	out := make([]any, 0, len(a.Anomalies))
	for _, an := range a.Anomalies {
		out = append(out, map[string]any{"signal": an.Signal, "severity": an.Severity, "details": an.Details})
	}
	return out
}

// matching returns the lower-cased, sorted distinct values matching pattern.
func matching(values []string, pattern *regexp.Regexp) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if !pattern.MatchString(value) {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

func round2(value float64) float64 {
	return math.RoundToEven(value*100) / 100
}
