package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"volmover/internal/ontap"
)

// PlanAction represents what will happen to a volume.
type PlanAction int

// Plan action constants.
const (
	PlanActionMove PlanAction = iota
	PlanActionSkip
	PlanActionError
)

func (a PlanAction) String() string {
	switch a {
	case PlanActionMove:
		return "Move"
	case PlanActionSkip:
		return "Skip"
	case PlanActionError:
		return "Error"
	default:
		return "Unknown"
	}
}

// PlanItem represents a single volume in the move plan.
type PlanItem struct {
	Volume    string
	SVM       string
	Aggregate string // current aggregate
	SizeBytes int64
	Action    PlanAction
	Reason    string // reason for skip or error
}

// Plan holds the complete preflight plan.
type Plan struct {
	Items       []PlanItem
	Destination ontap.Destination
	Concurrent  int
}

// GeneratePlan checks each volume against the cluster without starting any
// move: the volume must exist and must not already be moving.
func (o *Orchestrator) GeneratePlan(ctx context.Context) (*Plan, error) {
	plan := &Plan{
		Items:       make([]PlanItem, 0, len(o.order)),
		Destination: o.cfg.Destination,
		Concurrent:  o.cfg.MaxConcurrent,
	}

	for _, vol := range o.order {
		item := PlanItem{Volume: vol}

		info, err := o.client.LookupVolume(ctx, vol)
		if err != nil {
			item.Action = PlanActionError
			item.Reason = fmt.Sprintf("lookup failed: %v", err)
			plan.Items = append(plan.Items, item)
			continue
		}
		item.SVM = info.SVM
		item.Aggregate = info.Aggregate
		item.SizeBytes = info.SizeBytes

		active, err := o.client.FindActiveMove(ctx, vol)
		if err != nil {
			item.Action = PlanActionError
			item.Reason = fmt.Sprintf("move lookup failed: %v", err)
			plan.Items = append(plan.Items, item)
			continue
		}
		if active != nil {
			item.Action = PlanActionSkip
			item.Reason = fmt.Sprintf("move already active (%s, %d%%)", active.State, active.PercentComplete)
			plan.Items = append(plan.Items, item)
			continue
		}

		if o.cfg.Destination.Aggregate != "" && info.Aggregate == o.cfg.Destination.Aggregate {
			item.Action = PlanActionSkip
			item.Reason = "already on destination aggregate"
			plan.Items = append(plan.Items, item)
			continue
		}

		item.Action = PlanActionMove
		plan.Items = append(plan.Items, item)
	}

	return plan, nil
}

// Plan formatting styles
var (
	planTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	planHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("75"))

	planBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1)

	planMoveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	planSkipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	planErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	planDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	planInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	planTableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("99")).
				PaddingRight(2)
)

// FormatPlan renders the move plan as a colored string.
func FormatPlan(plan *Plan) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(planTitleStyle.Render("═══════════════════════════════════════════════════════════════"))
	b.WriteString("\n")
	b.WriteString(planTitleStyle.Render("                       VOLUME MOVE PLAN"))
	b.WriteString("\n")
	b.WriteString(planTitleStyle.Render("═══════════════════════════════════════════════════════════════"))
	b.WriteString("\n\n")

	b.WriteString(planHeaderStyle.Render("Configuration:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s %s\n", planInfoStyle.Render("Destination:"), plan.Destination))
	b.WriteString(fmt.Sprintf("  %s %d\n", planInfoStyle.Render("Concurrency:"), plan.Concurrent))
	b.WriteString("\n")

	moveCount := 0
	skipCount := 0
	errorCount := 0
	for _, item := range plan.Items {
		switch item.Action {
		case PlanActionMove:
			moveCount++
		case PlanActionSkip:
			skipCount++
		case PlanActionError:
			errorCount++
		}
	}

	b.WriteString(planHeaderStyle.Render(fmt.Sprintf("Volumes to Process (%d):", len(plan.Items))))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %s  %s  %s\n",
		planMoveStyle.Render(fmt.Sprintf("✓ Move: %d", moveCount)),
		planSkipStyle.Render(fmt.Sprintf("○ Skip: %d", skipCount)),
		planErrorStyle.Render(fmt.Sprintf("✗ Error: %d", errorCount)),
	))
	b.WriteString("\n")

	b.WriteString(planBoxStyle.Render(renderPlanTable(plan)))
	b.WriteString("\n\n")

	return b.String()
}

func renderPlanTable(plan *Plan) string {
	var b strings.Builder

	volColWidth := 32
	aggrColWidth := 18
	actionColWidth := 30

	b.WriteString(planTableHeaderStyle.Render(padRight("Volume", volColWidth)))
	b.WriteString(planTableHeaderStyle.Render(padRight("Aggregate", aggrColWidth)))
	b.WriteString(planTableHeaderStyle.Render(padRight("Action", actionColWidth)))
	b.WriteString("\n")

	b.WriteString(planDimStyle.Render(strings.Repeat("─", volColWidth+aggrColWidth+actionColWidth)))
	b.WriteString("\n")

	for _, item := range plan.Items {
		b.WriteString(padRight(truncatePlan(item.Volume, volColWidth-2), volColWidth))

		aggrStr := item.Aggregate
		if aggrStr == "" {
			aggrStr = "N/A"
		}
		b.WriteString(padRight(aggrStr, aggrColWidth))

		switch item.Action {
		case PlanActionMove:
			b.WriteString(planMoveStyle.Render(fmt.Sprintf("✓ Will move → %s", plan.Destination)))
		case PlanActionSkip:
			b.WriteString(planSkipStyle.Render(fmt.Sprintf("○ Skip (%s)", item.Reason)))
		case PlanActionError:
			b.WriteString(planErrorStyle.Render(fmt.Sprintf("✗ %s", truncatePlan(item.Reason, actionColWidth-4))))
		}
		b.WriteString("\n")

		if item.Action == PlanActionMove && item.SVM != "" {
			b.WriteString(planDimStyle.Render(fmt.Sprintf("  └─ svm %s, %s", item.SVM, formatSize(item.SizeBytes))))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func formatSize(bytes int64) string {
	const gib = 1 << 30
	if bytes >= gib {
		return fmt.Sprintf("%.1fGiB", float64(bytes)/gib)
	}
	return fmt.Sprintf("%.1fMiB", float64(bytes)/(1<<20))
}

func padRight(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}

func truncatePlan(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
