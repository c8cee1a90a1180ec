package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/intel-lattice/internal/workflow/engine"
)

var (
	headerStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	labelStyleDone    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	labelStyleMissing = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	boxStyle          = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	footerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
)

func labelStyleForStatus(status engine.Status) lipgloss.Style {
	switch status {
	case engine.StatusCompleted:
		return labelStyleDone
	case engine.StatusFailed:
		return labelStyleFailed
	case engine.StatusSkipped:
		return labelStyleSkipped
	case engine.StatusUnavailable:
		return labelStyleMissing
	default:
		return labelStyleDefault
	}
}

func friendlyLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	replacer := strings.NewReplacer("_", " ", "-", " ")
	words := strings.Fields(replacer.Replace(strings.ToLower(value)))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// RenderSummary formats a finished orchestration record for the terminal.
func RenderSummary(record engine.OrchestrationRecord) string {
	lines := []string{headerStyle.Render("⬡ INTEL · run " + shortID(record.RunID))}
	lines = append(lines, "Objectives: "+strings.Join(record.Objectives, "; "))
	lines = append(lines, "Execution order: "+strings.Join(record.ExecutionOrder, " → "), "")
	for _, result := range record.ModuleResults {
		label := labelStyleForStatus(result.Status).Render(friendlyLabel(string(result.Status)))
		lines = append(lines, fmt.Sprintf("  %-14s [%s] %s", result.Module, label, detailTextStyle.Render(result.Summary)))
	}
	for _, d := range record.Diagnostics {
		lines = append(lines, labelStyleSkipped.Render("  ! "+d))
	}
	lines = append(lines, footerStyle.Render(fmt.Sprintf(
		"%d completed · %d failed · %d skipped · %d unavailable · %.2fs",
		record.Count(engine.StatusCompleted), record.Count(engine.StatusFailed),
		record.Count(engine.StatusSkipped), record.Count(engine.StatusUnavailable),
		record.State.DurationS,
	)))
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
