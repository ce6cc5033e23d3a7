package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"volmover/internal/logging"
	"volmover/internal/ontap"
	"volmover/internal/orchestrator"
	"volmover/internal/ui"
)

// Console output styles
var (
	cliHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99"))

	cliWarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	cliInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	cliDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	cliValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	cliBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1).
			MarginTop(1)
)

// errMovesFailed drives the non-zero exit code through the normal error
// path, so the deferred log sync in runMove still runs.
var errMovesFailed = errors.New("one or more volume moves did not succeed")

func runMove(cmd *cobra.Command, _ []string) error {
	// Merge the volume list before validation so a list file alone works
	allVolumes, err := collectVolumes()
	if err != nil {
		return err
	}
	if len(allVolumes) == 0 {
		return fmt.Errorf("no volumes specified: use --volume, --volume-list or the config file")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	pw := password
	if !cmd.Flags().Changed("password") {
		pw = os.Getenv("ONTAP_PASSWORD")
	}
	if pw == "" {
		return fmt.Errorf("no password given: use --password or the ONTAP_PASSWORD environment variable")
	}

	log, err := logging.New(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		// The TUI owns the terminal; only plain mode logs to stderr.
		Console: plainMode,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	client := ontap.NewClient(ontap.Options{
		Cluster:       cfg.Cluster,
		Username:      cfg.Username,
		Password:      pw,
		InsecureTLS:   cfg.InsecureTLS,
		CutoverWindow: cfg.CutoverWindow,
		CutoverAction: cfg.CutoverAction,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Fail fast if the cluster is unreachable, before any move starts
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("cannot reach cluster %s: %w", cfg.Cluster, err)
	}

	dest := ontap.Destination{
		Node:      cfg.DestNode,
		Aggregate: cfg.DestAggregate,
	}
	orch := orchestrator.New(orchestrator.Config{
		Destination:   dest,
		MaxConcurrent: cfg.MaxConcurrent,
		MaxAttempts:   cfg.MaxAttempts,
		PollInterval:  cfg.PollInterval.Std(),
		JobTimeout:    cfg.JobTimeout.Std(),
	}, allVolumes, client, log)

	fmt.Println(buildBatchBox(orch.Volumes(), dest.String()))

	if planOnly {
		return runPlanMode(ctx, orch)
	}
	if plainMode {
		return runPlain(ctx, orch)
	}
	return runTUI(orch)
}

// collectVolumes merges volumes from the config file, the --volume flags
// and the volume list file, dropping duplicates and blank lines.
func collectVolumes() ([]string, error) {
	merged := make([]string, 0, len(cfg.Volumes))
	merged = append(merged, cfg.Volumes...)

	if cfg.VolumeListFile != "" {
		fromFile, err := readVolumeList(cfg.VolumeListFile)
		if err != nil {
			return nil, err
		}
		merged = append(merged, fromFile...)
	}

	seen := make(map[string]bool, len(merged))
	unique := merged[:0]
	for _, vol := range merged {
		vol = strings.TrimSpace(vol)
		if vol == "" || seen[vol] {
			continue
		}
		seen[vol] = true
		unique = append(unique, vol)
	}
	return unique, nil
}

// readVolumeList reads volume names from a file, one per line.
func readVolumeList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from CLI flag, user-controlled input is expected
	if err != nil {
		return nil, fmt.Errorf("failed to read volume list: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read volume list: %w", err)
	}
	return out, nil
}

// runPlanMode generates and displays the move plan without moving anything.
func runPlanMode(ctx context.Context, orch *orchestrator.Orchestrator) error {
	fmt.Println("\nGenerating move plan...")

	plan, err := orch.GeneratePlan(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate plan: %w", err)
	}

	fmt.Print(orchestrator.FormatPlan(plan))
	fmt.Println(cliDimStyle.Render("Run without --plan to execute the moves."))
	fmt.Println()

	return nil
}

// runPlain runs the batch without the TUI; progress goes to the logger.
func runPlain(ctx context.Context, orch *orchestrator.Orchestrator) error {
	report, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Print(orchestrator.FormatReport(report))
	if !report.Succeeded() {
		return errMovesFailed
	}
	return nil
}

// runTUI runs the batch behind the interactive Bubble Tea UI.
func runTUI(orch *orchestrator.Orchestrator) error {
	model := ui.NewModel(orch, cfg.Cluster)
	p := tea.NewProgram(model, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("UI error: %w", err)
	}

	if fm, ok := finalModel.(ui.Model); ok {
		// A quit mid-run only cancels the context; the batch goroutine
		// still has to abort in-flight moves before the outcome is known.
		fm.WaitForRun(45 * time.Second)
		fm.PrintSummary()
		if fm.HasErrors() {
			return errMovesFailed
		}
	}
	return nil
}

// buildBatchBox creates a styled box summarizing the batch about to run.
func buildBatchBox(vols []string, destination string) string {
	var content strings.Builder

	content.WriteString(cliHeaderStyle.Render("Volume Move Batch"))
	content.WriteString("\n\n")

	content.WriteString(fmt.Sprintf("  %s %s\n",
		cliInfoStyle.Render("Cluster:"),
		cliValueStyle.Render(cfg.Cluster)))
	content.WriteString(fmt.Sprintf("  %s %s\n",
		cliInfoStyle.Render("Destination:"),
		cliValueStyle.Render(destination)))
	content.WriteString(fmt.Sprintf("  %s %d concurrent, %d attempts, poll %s\n",
		cliInfoStyle.Render("Policy:"),
		cfg.MaxConcurrent, cfg.MaxAttempts, cfg.PollInterval.Std()))

	content.WriteString(fmt.Sprintf("\n  %s %s\n",
		cliInfoStyle.Render("◆"),
		cliValueStyle.Render(fmt.Sprintf("%d volume(s)", len(vols)))))
	content.WriteString(formatVolumeGrid(vols))

	if cfg.JobTimeout.Std() < cfg.PollInterval.Std() {
		content.WriteString(fmt.Sprintf("\n  %s %s",
			cliWarningStyle.Render("⚠"),
			"timeout is shorter than the poll interval"))
	}

	return cliBoxStyle.Render(content.String())
}

// formatVolumeGrid formats volume names in a compact grid
func formatVolumeGrid(vols []string) string {
	var b strings.Builder
	maxPerLine := 3
	maxLen := 26

	for i, vol := range vols {
		if i%maxPerLine == 0 {
			b.WriteString("    ")
		}

		name := vol
		if r := []rune(name); len(r) > maxLen {
			name = string(r[:maxLen-2]) + ".."
		}

		b.WriteString(cliDimStyle.Render(fmt.Sprintf("%-28s", name)))

		if (i+1)%maxPerLine == 0 && i < len(vols)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}
