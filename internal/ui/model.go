package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"volmover/internal/orchestrator"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	volumeNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Width(36)

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(14)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(1, 2)
)

type tickMsg time.Time
type startMsg struct{}
type doneMsg struct{}
type planReadyMsg struct {
	plan *orchestrator.Plan
	err  error
}

// Model is the Bubble Tea model.
type Model struct {
	orch           *orchestrator.Orchestrator
	cluster        string
	spinner        spinner.Model
	progressBars   map[string]progress.Model
	started        bool
	confirmed      bool
	quitting       bool
	ctx            context.Context
	cancel         context.CancelFunc
	runDone        chan struct{}
	generatingPlan bool
	plan           *orchestrator.Plan
	planError      error
}

// NewModel creates a new UI model.
func NewModel(orch *orchestrator.Orchestrator, cluster string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	progressBars := make(map[string]progress.Model)
	for _, vol := range orch.Volumes() {
		p := progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		)
		progressBars[vol] = p
	}

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		orch:           orch,
		cluster:        cluster,
		spinner:        s,
		progressBars:   progressBars,
		ctx:            ctx,
		cancel:         cancel,
		runDone:        make(chan struct{}),
		generatingPlan: true, // Start by generating the plan
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tickCmd(), m.generatePlanCmd())
}

func (m Model) generatePlanCmd() tea.Cmd {
	return func() tea.Msg {
		plan, err := m.orch.GeneratePlan(m.ctx)
		return planReadyMsg{plan: plan, err: err}
	}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		case "enter", "y":
			if !m.confirmed && !m.generatingPlan && m.planError == nil {
				m.confirmed = true
				return m, m.startMoves()
			}
		case "n":
			if !m.confirmed {
				m.quitting = true
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		return m, nil

	case planReadyMsg:
		m.generatingPlan = false
		m.plan = msg.plan
		m.planError = msg.err
		return m, m.tickCmd()

	case startMsg:
		m.started = true
		return m, m.tickCmd()

	case doneMsg:
		return m, tea.Quit

	case tickMsg:
		if m.started && m.orch.IsDone() {
			return m, tea.Tick(time.Second, func(t time.Time) tea.Msg {
				return doneMsg{}
			})
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, tea.Batch(cmd, m.tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) startMoves() tea.Cmd {
	return func() tea.Msg {
		go func() {
			defer close(m.runDone)
			_, _ = m.orch.Run(m.ctx)
		}()
		return startMsg{}
	}
}

// WaitForRun blocks until the batch goroutine has returned, so a
// cancelled run finishes sending its best-effort aborts and the report
// covers every job before the summary and exit code are derived. Returns
// immediately if no batch was started.
func (m Model) WaitForRun(timeout time.Duration) {
	if !m.started {
		return
	}
	select {
	case <-m.runDone:
	case <-time.After(timeout):
	}
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return "\n  Move run cancelled.\n\n"
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  Volume Move Tool"))
	b.WriteString("\n\n")

	// Show loading state while generating plan
	if m.generatingPlan {
		b.WriteString("  ")
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(infoStyle.Render("Generating move plan..."))
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("  Checking volumes on the cluster..."))
		b.WriteString("\n\n")
		return b.String()
	}

	// Show error if plan generation failed
	if m.planError != nil {
		b.WriteString(errorStyle.Render("  ✗ Failed to generate plan: "))
		b.WriteString(errorStyle.Render(m.planError.Error()))
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("  Press q to exit"))
		b.WriteString("\n\n")
		return b.String()
	}

	// Show plan before confirmation
	if !m.confirmed && m.plan != nil {
		b.WriteString(orchestrator.FormatPlan(m.plan))

		b.WriteString("  Press ")
		b.WriteString(headerStyle.Render("Enter"))
		b.WriteString(" or ")
		b.WriteString(headerStyle.Render("y"))
		b.WriteString(" to start, ")
		b.WriteString(headerStyle.Render("n"))
		b.WriteString(" or ")
		b.WriteString(headerStyle.Render("q"))
		b.WriteString(" to cancel\n\n")
		return b.String()
	}

	// Config box (shown during the run)
	cfg := m.orch.Config()
	configContent := fmt.Sprintf(
		"%s %s\n%s %s\n%s %d\n%s %d",
		infoStyle.Render("Cluster:"),
		m.cluster,
		infoStyle.Render("Destination:"),
		cfg.Destination,
		infoStyle.Render("Concurrency:"),
		cfg.MaxConcurrent,
		infoStyle.Render("Volumes:"),
		len(m.orch.Volumes()),
	)

	b.WriteString(boxStyle.Render(configContent))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("  Move Progress:"))
	b.WriteString("\n\n")

	jobs := m.orch.Jobs()
	for _, vol := range m.orch.Volumes() {
		b.WriteString(m.renderJob(jobs[vol]))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if !m.orch.IsDone() {
		b.WriteString(dimStyle.Render("  Press q or Ctrl+C to cancel"))
	} else {
		b.WriteString(successStyle.Render("  All moves finished. Press q to exit"))
	}
	b.WriteString("\n\n")

	return b.String()
}

func (m Model) renderJob(job *orchestrator.Job) string {
	var b strings.Builder

	b.WriteString("  ")
	b.WriteString(volumeNameStyle.Render(truncate(job.Volume, 34)))
	b.WriteString(" ")

	switch job.Phase {
	case orchestrator.PhasePending:
		b.WriteString(dimStyle.Render("○"))
		b.WriteString(" ")
		b.WriteString(phaseStyle.Render("Pending"))
		if job.LastErr != nil {
			b.WriteString(warningStyle.Render(fmt.Sprintf(" retrying (attempt %d)", job.Attempts)))
		}

	case orchestrator.PhaseSucceeded:
		b.WriteString(successStyle.Render("✓"))
		b.WriteString(" ")
		b.WriteString(successStyle.Render("Succeeded"))
		b.WriteString(dimStyle.Render(fmt.Sprintf(" (%s)", job.Duration())))

	case orchestrator.PhaseFailed:
		b.WriteString(errorStyle.Render("✗"))
		b.WriteString(" ")
		b.WriteString(errorStyle.Render("Failed"))
		if job.LastErr != nil {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" - %s", truncate(job.LastErr.Error(), 48))))
		}

	case orchestrator.PhaseAborted:
		b.WriteString(warningStyle.Render("○"))
		b.WriteString(" ")
		b.WriteString(warningStyle.Render("Aborted"))

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(phaseStyle.Render(job.Phase.String()))
		b.WriteString(" ")

		if job.Progress > 0 {
			if p, ok := m.progressBars[job.Volume]; ok {
				b.WriteString(p.ViewAs(float64(job.Progress) / 100.0))
				b.WriteString(dimStyle.Render(fmt.Sprintf(" %d%%", job.Progress)))
			}
		}
	}

	return b.String()
}

// HasErrors returns true if any move failed or was aborted.
func (m Model) HasErrors() bool {
	for _, job := range m.orch.Jobs() {
		if job.Phase == orchestrator.PhaseFailed || job.Phase == orchestrator.PhaseAborted {
			return true
		}
	}
	return false
}

// PrintSummary prints a summary after the TUI exits.
func (m Model) PrintSummary() {
	if m.quitting && !m.started {
		return
	}
	fmt.Print(orchestrator.FormatReport(m.orch.Report()))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
