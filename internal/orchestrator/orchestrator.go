package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"volmover/internal/ontap"
)

// Defaults mirror the operational limits the tool has always shipped with:
// four concurrent moves, a 30s status poll and a 24h per-volume timeout.
const (
	DefaultMaxConcurrent = 4
	DefaultMaxAttempts   = 3
	DefaultPollInterval  = 30 * time.Second
	DefaultJobTimeout    = 24 * time.Hour

	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryMaxDelay  = time.Minute

	// connectivityFailureRounds is how many consecutive poll rounds may
	// fail entirely with transient errors before the batch is written off
	// as a total loss of cluster connectivity.
	connectivityFailureRounds = 5
)

// Precondition errors returned by Run before any network call is made.
var (
	ErrNoVolumes     = errors.New("no volumes to move")
	ErrNoDestination = errors.New("no destination node or aggregate specified")
)

// ErrTimeout marks a job that exceeded its maximum duration.
var ErrTimeout = errors.New("move timed out")

// Config holds the orchestration policy.
type Config struct {
	Destination    ontap.Destination
	MaxConcurrent  int
	MaxAttempts    int
	PollInterval   time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	JobTimeout     time.Duration
}

// withDefaults fills in zero fields.
func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	return c
}

// Orchestrator drives a batch of volume moves to completion. A single
// control loop owns all job state; the mutex only guards snapshot reads
// from other goroutines (the UI).
type Orchestrator struct {
	cfg    Config
	client ontap.API
	log    *zap.SugaredLogger
	runID  string

	mu     sync.RWMutex
	jobs   map[string]*Job
	order  []string
	report *Report
	done   bool

	// failedPollRounds counts consecutive rounds where every request
	// failed with a transient error.
	failedPollRounds int
}

// New creates an orchestrator for the given volumes. Duplicate volume
// names collapse to a single job; first-seen input order is preserved for
// FIFO submission.
func New(cfg Config, volumes []string, client ontap.API, log *zap.SugaredLogger) *Orchestrator {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	runID := uuid.New().String()
	jobs := make(map[string]*Job, len(volumes))
	order := make([]string, 0, len(volumes))
	for _, vol := range volumes {
		if _, seen := jobs[vol]; seen {
			continue
		}
		jobs[vol] = &Job{
			Volume:      vol,
			Destination: cfg.Destination,
			Phase:       PhasePending,
		}
		order = append(order, vol)
	}

	return &Orchestrator{
		cfg:    cfg,
		client: client,
		log:    log.With("run_id", runID),
		runID:  runID,
		jobs:   jobs,
		order:  order,
		report: &Report{
			RunID:       runID,
			Destination: cfg.Destination,
		},
	}
}

// Config returns the orchestration policy in effect.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Volumes returns the deduplicated volume names in submission order.
func (o *Orchestrator) Volumes() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Jobs returns a copy of all job states, keyed by volume name.
func (o *Orchestrator) Jobs() map[string]*Job {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]*Job, len(o.jobs))
	for vol, job := range o.jobs {
		jobCopy := *job
		out[vol] = &jobCopy
	}
	return out
}

// IsDone reports whether every job has reached a terminal phase.
func (o *Orchestrator) IsDone() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.done
}

// Report returns a copy of the batch report accumulated so far.
func (o *Orchestrator) Report() *Report {
	o.mu.RLock()
	defer o.mu.RUnlock()

	reportCopy := *o.report
	reportCopy.Entries = make([]Entry, len(o.report.Entries))
	copy(reportCopy.Entries, o.report.Entries)
	return &reportCopy
}

// Run processes the batch until every job is terminal or ctx is cancelled.
// Cancellation sends a best-effort abort to every non-terminal job and
// returns the report covering all of them; cancelling twice is a no-op
// because every job is already terminal by then.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if len(o.order) == 0 {
		return nil, ErrNoVolumes
	}
	if !o.cfg.Destination.Specified() {
		return nil, ErrNoDestination
	}

	o.mu.Lock()
	o.report.StartedAt = time.Now()
	o.mu.Unlock()
	o.log.Infow("starting batch",
		"volumes", len(o.order),
		"destination", o.cfg.Destination.String(),
		"max_concurrent", o.cfg.MaxConcurrent)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		o.step(ctx, time.Now())
		if o.allTerminal() {
			break
		}

		select {
		case <-ctx.Done():
			o.log.Warnw("batch cancelled, aborting in-flight moves")
			o.abortRemaining()
			return o.finish(), nil
		case <-ticker.C:
		}
	}

	return o.finish(), nil
}

// step runs one round of the control loop: poll active jobs, enforce
// per-job timeouts, then submit pending jobs up to the concurrency cap.
// All state transitions happen serially within this goroutine.
func (o *Orchestrator) step(ctx context.Context, now time.Time) {
	requests := 0
	transientFailures := 0

	for _, vol := range o.order {
		job := o.jobs[vol]
		if job.Phase.Terminal() {
			continue
		}

		// The deadline covers the whole job, including time parked in
		// Pending between retries, not just the active phases.
		if !job.deadline.IsZero() && now.After(job.deadline) {
			o.log.Errorw("move exceeded timeout", "volume", vol, "timeout", o.cfg.JobTimeout)
			if job.Phase.Active() {
				if err := o.client.AbortMove(ctx, vol); err != nil {
					o.log.Warnw("abort after timeout failed", "volume", vol, "error", err)
				}
			}
			o.fail(job, fmt.Errorf("%w after %s", ErrTimeout, o.cfg.JobTimeout))
			continue
		}

		if !job.Phase.Active() {
			continue
		}

		requests++
		if transient := o.poll(ctx, job, now); transient {
			transientFailures++
		}
	}

	// Total connectivity loss: fail the remaining jobs rather than poll a
	// dead cluster forever.
	if requests > 0 && transientFailures == requests {
		o.failedPollRounds++
	} else {
		o.failedPollRounds = 0
	}
	if o.failedPollRounds >= connectivityFailureRounds {
		o.log.Errorw("cluster unreachable, failing remaining moves",
			"failed_rounds", o.failedPollRounds)
		o.failRemaining(errors.New("cluster connectivity lost"))
		return
	}

	o.submitPending(ctx, now)
}

// submitPending starts moves for pending jobs, FIFO by input order, while
// concurrency slots are free and backoff delays have elapsed.
func (o *Orchestrator) submitPending(ctx context.Context, now time.Time) {
	active := o.activeCount()
	for _, vol := range o.order {
		if active >= o.cfg.MaxConcurrent {
			return
		}
		job := o.jobs[vol]
		if job.Phase != PhasePending || now.Before(job.nextAttemptAt) {
			continue
		}
		if o.submit(ctx, job, now) {
			active++
		}
	}
}

// submit issues one move submission. Returns true if the job now holds a
// concurrency slot.
func (o *Orchestrator) submit(ctx context.Context, job *Job, now time.Time) bool {
	o.mu.Lock()
	job.Attempts++
	job.Phase = PhaseSubmitted
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = now
		job.deadline = now.Add(o.cfg.JobTimeout)
	}
	o.mu.Unlock()

	o.log.Infow("submitting move", "volume", job.Volume, "attempt", job.Attempts)
	err := o.client.SubmitMove(ctx, job.Volume, job.Destination)
	if err == nil {
		o.mu.Lock()
		job.LastErr = nil
		o.mu.Unlock()
		return true
	}

	o.retryOrFail(job, now, err)
	return false
}

// poll queries the cluster for one active job and applies the resulting
// transition. Returns true if the poll failed with a transient error.
func (o *Orchestrator) poll(ctx context.Context, job *Job, now time.Time) bool {
	status, err := o.client.PollMove(ctx, job.Volume)
	if err != nil {
		if ontap.IsTransient(err) {
			// Remote state is unchanged as far as we know; record the
			// error and try again next round.
			o.mu.Lock()
			job.LastErr = err
			o.mu.Unlock()
			return true
		}
		o.fail(job, err)
		return false
	}

	o.mu.Lock()
	job.Progress = status.PercentComplete
	o.mu.Unlock()

	switch status.State {
	case ontap.MoveStateQueued:
		// Accepted but not yet copying. No transition.
	case ontap.MoveStateReplicating:
		o.transition(job, PhaseInProgress)
	case ontap.MoveStateCutoverWait, ontap.MoveStateCutover:
		o.transition(job, PhaseCutover)
	case ontap.MoveStateSuccess:
		o.succeed(job)
	case ontap.MoveStateFailed:
		moveErr := errors.New("cluster reported move failure")
		if status.Message != "" {
			moveErr = fmt.Errorf("cluster reported move failure: %s", status.Message)
		}
		o.retryOrFail(job, now, moveErr)
	case ontap.MoveStateAborted:
		o.abortJob(job, errors.New("move aborted on cluster"))
	default:
		o.log.Debugw("unrecognized move state", "volume", job.Volume, "state", status.State)
	}
	return false
}

// retryOrFail sends a job back to Pending with a backoff delay if the
// error is transient and attempts remain; otherwise the job fails.
func (o *Orchestrator) retryOrFail(job *Job, now time.Time, err error) {
	if !ontap.IsTransient(err) || job.Attempts >= o.cfg.MaxAttempts {
		o.fail(job, err)
		return
	}

	delay := o.backoff(job.Attempts)
	o.log.Warnw("move attempt failed, will retry",
		"volume", job.Volume,
		"attempt", job.Attempts,
		"retry_in", delay,
		"error", err)

	o.mu.Lock()
	job.Phase = PhasePending
	job.LastErr = err
	job.nextAttemptAt = now.Add(delay)
	o.mu.Unlock()
}

// backoff returns the delay before the next submission attempt:
// exponential from the base delay, capped.
func (o *Orchestrator) backoff(attempts int) time.Duration {
	delay := o.cfg.RetryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= o.cfg.RetryMaxDelay {
			return o.cfg.RetryMaxDelay
		}
	}
	if delay > o.cfg.RetryMaxDelay {
		return o.cfg.RetryMaxDelay
	}
	return delay
}

// transition moves a job to a new non-terminal phase, clearing the last
// error. Terminal phases are sinks and never left.
func (o *Orchestrator) transition(job *Job, phase Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if job.Phase.Terminal() || job.Phase == phase {
		return
	}
	o.log.Infow("move progressed", "volume", job.Volume, "phase", phase.String())
	job.Phase = phase
	job.LastErr = nil
}

func (o *Orchestrator) succeed(job *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if job.Phase.Terminal() {
		return
	}
	job.Phase = PhaseSucceeded
	job.Progress = 100
	job.LastErr = nil
	job.CompletedAt = time.Now()
	o.recordLocked(job)
	o.log.Infow("move succeeded", "volume", job.Volume, "duration", job.Duration())
}

func (o *Orchestrator) fail(job *Job, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if job.Phase.Terminal() {
		return
	}
	job.Phase = PhaseFailed
	job.LastErr = err
	job.CompletedAt = time.Now()
	o.recordLocked(job)
	o.log.Errorw("move failed", "volume", job.Volume, "attempts", job.Attempts, "error", err)
}

func (o *Orchestrator) abortJob(job *Job, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if job.Phase.Terminal() {
		return
	}
	job.Phase = PhaseAborted
	job.LastErr = err
	job.CompletedAt = time.Now()
	o.recordLocked(job)
	o.log.Warnw("move aborted", "volume", job.Volume)
}

// recordLocked appends the job's terminal outcome to the report.
// Completion order, not input order. Caller holds o.mu.
func (o *Orchestrator) recordLocked(job *Job) {
	o.report.Entries = append(o.report.Entries, Entry{
		Volume:   job.Volume,
		Phase:    job.Phase,
		Attempts: job.Attempts,
		Duration: job.Duration(),
		Err:      job.LastErr,
	})
}

// abortRemaining sends a best-effort abort for every non-terminal job and
// marks it Aborted. Abort calls use a fresh context because the run
// context is already cancelled.
func (o *Orchestrator) abortRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, vol := range o.order {
		job := o.jobs[vol]
		if job.Phase.Terminal() {
			continue
		}
		if job.Phase.Active() {
			if err := o.client.AbortMove(ctx, vol); err != nil {
				o.log.Warnw("abort call failed", "volume", vol, "error", err)
			}
		}
		o.abortJob(job, errors.New("cancelled by operator"))
	}
}

// failRemaining marks every non-terminal job Failed with the given error.
func (o *Orchestrator) failRemaining(err error) {
	for _, vol := range o.order {
		job := o.jobs[vol]
		if !job.Phase.Terminal() {
			o.fail(job, err)
		}
	}
}

func (o *Orchestrator) activeCount() int {
	count := 0
	for _, job := range o.jobs {
		if job.Phase.Active() {
			count++
		}
	}
	return count
}

func (o *Orchestrator) allTerminal() bool {
	for _, job := range o.jobs {
		if !job.Phase.Terminal() {
			return false
		}
	}
	return true
}

// finish stamps the report and flips the done flag.
func (o *Orchestrator) finish() *Report {
	o.mu.Lock()
	o.report.FinishedAt = time.Now()
	o.done = true
	o.mu.Unlock()

	report := o.Report()
	succeeded, failed, aborted := report.Counts()
	o.log.Infow("batch finished",
		"succeeded", succeeded,
		"failed", failed,
		"aborted", aborted,
		"duration", report.Duration())
	return report
}
