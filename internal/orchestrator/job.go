// Package orchestrator implements the volume move orchestration engine.
// It drives each requested volume through a move state machine by polling
// the cluster, applies the retry and concurrency policy, and aggregates
// final results into a batch report.
package orchestrator

import (
	"time"

	"volmover/internal/ontap"
)

// Phase represents the state of one volume's move attempt.
type Phase int

// Move phases. Succeeded, Failed and Aborted are terminal.
const (
	PhasePending Phase = iota
	PhaseSubmitted
	PhaseInProgress
	PhaseCutover
	PhaseSucceeded
	PhaseFailed
	PhaseAborted
)

func (p Phase) String() string {
	names := []string{
		"Pending",
		"Submitted",
		"In Progress",
		"Cutover",
		"Succeeded",
		"Failed",
		"Aborted",
	}
	if int(p) < len(names) {
		return names[p]
	}
	return "Unknown"
}

// Terminal reports whether a job in this phase is finished. Terminal
// phases are sinks: no job ever leaves one.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseAborted
}

// Active reports whether a job in this phase holds a concurrency slot.
func (p Phase) Active() bool {
	return p == PhaseSubmitted || p == PhaseInProgress || p == PhaseCutover
}

// Job tracks one volume's move attempt. Jobs are owned exclusively by the
// orchestrator's control loop; callers only see copies.
type Job struct {
	Volume      string
	Destination ontap.Destination
	Phase       Phase
	Attempts    int
	Progress    int
	LastErr     error
	SubmittedAt time.Time
	CompletedAt time.Time

	// nextAttemptAt gates resubmission after a backoff delay.
	nextAttemptAt time.Time
	// deadline forces the job to Failed if it never reaches a terminal
	// phase on its own.
	deadline time.Time
}

// Duration returns how long the job ran, or how long it has been running.
func (j *Job) Duration() time.Duration {
	if j.SubmittedAt.IsZero() {
		return 0
	}
	if j.CompletedAt.IsZero() {
		return time.Since(j.SubmittedAt).Round(time.Second)
	}
	return j.CompletedAt.Sub(j.SubmittedAt).Round(time.Second)
}
