// Package ui renders the human-readable run summary for the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/localrivet/mcpsmoke/harness"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D26A"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF3838"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB800"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	bracketStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func statusBadge(status harness.StepStatus) string {
	var style lipgloss.Style
	switch status {
	case harness.StatusOK:
		style = okStyle
	case harness.StatusSkipped:
		style = skipStyle
	default:
		style = failStyle
	}
	return bracketStyle.Render("[") + style.Render(string(status)) + bracketStyle.Render("]")
}

// RenderReport formats the full run summary, one line per step plus a final
// verdict.
func RenderReport(report *harness.Report) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mcpsmoke"))
	b.WriteString(" ")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("run %s, target %s", report.RunID, report.Target)))
	b.WriteString("\n")

	if report.SessionToken != "" {
		b.WriteString(mutedStyle.Render("session " + report.SessionToken))
		b.WriteString("\n")
	}

	for _, step := range report.Steps {
		b.WriteString(renderStep(step))
		b.WriteString("\n")
	}

	b.WriteString(renderVerdict(report))
	b.WriteString("\n")
	return b.String()
}

func renderStep(step harness.Step) string {
	parts := []string{statusBadge(step.Status), step.Method}
	if step.Duration > 0 {
		parts = append(parts, mutedStyle.Render(formatDuration(step.Duration)))
	}

	line := "  " + strings.Join(parts, " ")
	switch {
	case step.Err != "":
		line += "\n      " + failStyle.Render("-> "+step.Err)
	case step.Detail != "":
		line += "\n      " + mutedStyle.Render("-> "+step.Detail)
	}
	return line
}

func renderVerdict(report *harness.Report) string {
	elapsed := report.FinishedAt.Sub(report.StartedAt)

	if !report.OK() {
		return failStyle.Render("FATAL") + " " + report.Fatal + mutedStyle.Render(" ("+formatDuration(elapsed)+")")
	}
	if n := report.SoftFailures(); n > 0 {
		return skipStyle.Render(fmt.Sprintf("PASSED with %d soft failure(s)", n)) + mutedStyle.Render(" ("+formatDuration(elapsed)+")")
	}
	return okStyle.Render("PASSED") + mutedStyle.Render(" ("+formatDuration(elapsed)+")")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
