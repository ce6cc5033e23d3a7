package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"volmover/internal/ontap"
)

// Entry is one volume's final outcome.
type Entry struct {
	Volume   string
	Phase    Phase
	Attempts int
	Duration time.Duration
	Err      error
}

// Report is the aggregated outcome of all requested moves in one run.
// Entries appear in the order jobs reached a terminal phase, which is not
// necessarily input order.
type Report struct {
	RunID       string
	Destination ontap.Destination
	StartedAt   time.Time
	FinishedAt  time.Time
	Entries     []Entry
}

// Succeeded reports whether every move ended in the Succeeded phase.
func (r *Report) Succeeded() bool {
	if len(r.Entries) == 0 {
		return false
	}
	for _, e := range r.Entries {
		if e.Phase != PhaseSucceeded {
			return false
		}
	}
	return true
}

// Counts returns how many moves succeeded, failed and were aborted.
func (r *Report) Counts() (succeeded, failed, aborted int) {
	for _, e := range r.Entries {
		switch e.Phase {
		case PhaseSucceeded:
			succeeded++
		case PhaseFailed:
			failed++
		case PhaseAborted:
			aborted++
		}
	}
	return succeeded, failed, aborted
}

// Duration returns the wall-clock time of the whole batch.
func (r *Report) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second)
}

// Report formatting styles
var (
	reportTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("99"))

	reportSuccessStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42"))

	reportErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196"))

	reportWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214"))

	reportDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// FormatReport renders the batch report as a colored string.
func FormatReport(r *Report) string {
	var b strings.Builder

	rule := reportTitleStyle.Render(strings.Repeat("═", 65))

	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n")
	b.WriteString(reportTitleStyle.Render("                    VOLUME MOVE SUMMARY"))
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n\n")

	for _, e := range r.Entries {
		switch e.Phase {
		case PhaseSucceeded:
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				reportSuccessStyle.Render("✓"),
				e.Volume,
				reportDimStyle.Render(fmt.Sprintf("(%s)", e.Duration))))
		case PhaseAborted:
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				reportWarningStyle.Render("○"),
				e.Volume,
				reportDimStyle.Render("(aborted)")))
		default:
			b.WriteString(fmt.Sprintf("  %s %s\n",
				reportErrorStyle.Render("✗"),
				e.Volume))
			if e.Err != nil {
				b.WriteString(fmt.Sprintf("    %s %s\n",
					reportErrorStyle.Render("Error:"),
					e.Err.Error()))
			}
		}
	}

	succeeded, failed, aborted := r.Counts()
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Total: %d | %s | %s | %s\n",
		len(r.Entries),
		reportSuccessStyle.Render(fmt.Sprintf("Succeeded: %d", succeeded)),
		reportErrorStyle.Render(fmt.Sprintf("Failed: %d", failed)),
		reportWarningStyle.Render(fmt.Sprintf("Aborted: %d", aborted))))
	if dur := r.Duration(); dur > 0 {
		avg := dur / time.Duration(max(len(r.Entries), 1))
		b.WriteString(reportDimStyle.Render(
			fmt.Sprintf("  Duration: %s (avg %s per volume)", dur, avg.Round(time.Second))))
		b.WriteString("\n")
	}
	b.WriteString(rule)
	b.WriteString("\n")

	return b.String()
}
