package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultStagger offsets the first due time of consecutive jobs so a cold
	// start (or the end of a backoff) does not fire every request at once.
	DefaultStagger = 5 * time.Second

	// DefaultBackoff is how long all requests pause after a 403.
	DefaultBackoff = time.Hour

	// DefaultStaleAfter is how recent a success must be for the scheduler to
	// report itself as connected.
	DefaultStaleAfter = 2 * time.Hour

	// backoffLogEvery throttles the "backoff active" reminder.
	backoffLogEvery = 5 * time.Minute
)

// ErrUpdateFailed is returned by [Scheduler.RunCycle] when every attempted
// job failed and no job has ever succeeded, so there is no usable data at all.
var ErrUpdateFailed = errors.New("all endpoint fetches failed and no data has ever been fetched")

// State is the process-wide scheduler state.
type State int

const (
	// StateActive is normal operation: due jobs are run each cycle.
	StateActive State = iota

	// StateBackoff suspends every job until the backoff deadline passes.
	StateBackoff
)

// String returns "active" or "backoff".
func (s State) String() string {
	if s == StateBackoff {
		return "backoff"
	}
	return "active"
}

// Job is one independently scheduled upstream resource.
type Job struct {
	// Name identifies the job in logs, metrics and [Health].
	Name string

	// Interval is the base time between successful or failed runs.
	Interval time.Duration

	// Run fetches and stores the resource. A returned error that exposes
	// StatusCode() == 403 trips the circuit breaker.
	Run func(ctx context.Context) error
}

// Recorder receives scheduler events, typically to feed metrics.
type Recorder interface {
	RecordFetch(job string, latency time.Duration, err error)
	RecordConsecutiveErrors(job string, n int)
	RecordBackoff(active bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordFetch(string, time.Duration, error) {}
func (noopRecorder) RecordConsecutiveErrors(string, int)      {}
func (noopRecorder) RecordBackoff(bool)                       {}

// entry is the mutable schedule for one job.
type entry struct {
	job               Job
	nextDue           time.Time
	consecutiveErrors int
	lastSuccess       time.Time
	lastError         string
}

// Scheduler decides which jobs are due on each wake cycle, runs them one at a
// time in declaration order, and manages the global 403 circuit breaker.
//
// A Scheduler is owned by a single goroutine: [Scheduler.RunCycle] and
// [Scheduler.Health] must not be called concurrently.
type Scheduler struct {
	entries []*entry
	logger  *slog.Logger

	now        func() time.Time
	jitter     func(time.Duration) time.Duration
	stagger    time.Duration
	backoff    time.Duration
	staleAfter time.Duration
	recorder   Recorder

	// zero means the breaker is closed
	backoffUntil   time.Time
	lastBackoffLog time.Time
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithJitter replaces [Jitter].
func WithJitter(j func(time.Duration) time.Duration) Option {
	return func(s *Scheduler) { s.jitter = j }
}

// WithStagger sets the per-position offset applied at start-up and after a
// backoff. Zero makes every job due immediately.
func WithStagger(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.stagger = d
		}
	}
}

// WithBackoff sets how long a 403 suspends all jobs.
func WithBackoff(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// WithStaleAfter sets the connectivity staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithRecorder attaches a metrics [Recorder].
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewScheduler creates a [Scheduler] for jobs, in the given order.
//
// The first run of job i is due at now + i*stagger. Returns an error if jobs
// is empty, a name repeats, an interval is not positive, or Run is nil.
func NewScheduler(jobs []Job, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, errors.New("at least one job is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		logger:     logger,
		now:        time.Now,
		jitter:     Jitter,
		stagger:    DefaultStagger,
		backoff:    DefaultBackoff,
		staleAfter: DefaultStaleAfter,
		recorder:   noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	seen := make(map[string]bool, len(jobs))
	start := s.now()
	for i, job := range jobs {
		if job.Name == "" {
			return nil, fmt.Errorf("jobs[%d]: name is required", i)
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate job name: %q", job.Name)
		}
		seen[job.Name] = true
		if job.Interval <= 0 {
			return nil, fmt.Errorf("jobs[%d] (%s): interval must be positive, got %s", i, job.Name, job.Interval)
		}
		if job.Run == nil {
			return nil, fmt.Errorf("jobs[%d] (%s): run function is required", i, job.Name)
		}
		s.entries = append(s.entries, &entry{
			job:     job,
			nextDue: start.Add(time.Duration(i) * s.stagger),
		})
	}

	return s, nil
}

// Report summarises one wake cycle.
type Report struct {
	// Attempted lists the jobs that were due and run, in order.
	Attempted []string

	// Succeeded and Failed partition Attempted.
	Succeeded []string
	Failed    []string

	// Tripped names the job whose 403 opened the breaker this cycle.
	Tripped string

	// Skipped is true when the cycle did nothing because of an active backoff.
	Skipped bool

	// BackoffUntil is set while the breaker is open.
	BackoffUntil time.Time
}

// RunCycle runs every due job once, in declaration order.
//
// While a backoff is active nothing is run. A job that fails with a 403
// opens the breaker: all jobs are rescheduled to the backoff deadline plus
// their stagger offset and the rest of the cycle is abandoned. Any other
// failure only bumps that job's error counter; later jobs still run.
// Attempted jobs that did not trip the breaker are rescheduled to
// now + jitter(interval).
//
// A cancelled ctx stops the cycle before the next job starts; a job already
// running is allowed to finish under its own request timeout.
//
// The returned error wraps [ErrUpdateFailed] when at least one job ran, all
// of them failed, and no job has ever succeeded.
func (s *Scheduler) RunCycle(ctx context.Context) (Report, error) {
	now := s.now()
	var rep Report

	if now.Before(s.backoffUntil) {
		rep.Skipped = true
		rep.BackoffUntil = s.backoffUntil
		s.logBackoff(now)
		return rep, nil
	}
	if !s.backoffUntil.IsZero() {
		s.logger.Info("backoff expired, resuming requests")
		s.backoffUntil = time.Time{}
		s.recorder.RecordBackoff(false)
	}

	var lastErr error
	for _, e := range s.entries {
		if now.Before(e.nextDue) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		rep.Attempted = append(rep.Attempted, e.job.Name)
		start := time.Now()
		err := s.run(ctx, e)
		s.recorder.RecordFetch(e.job.Name, time.Since(start), err)

		if err == nil {
			e.consecutiveErrors = 0
			e.lastSuccess = now
			e.lastError = ""
			e.nextDue = now.Add(s.jitter(e.job.Interval))
			rep.Succeeded = append(rep.Succeeded, e.job.Name)
			s.recorder.RecordConsecutiveErrors(e.job.Name, 0)
			s.logger.Info("fetched endpoint", "endpoint", e.job.Name, "next_in", e.nextDue.Sub(now).Round(time.Second).String())
			continue
		}

		lastErr = err
		e.lastError = err.Error()
		rep.Failed = append(rep.Failed, e.job.Name)

		if isForbidden(err) {
			s.trip(now, e.job.Name)
			rep.Tripped = e.job.Name
			rep.BackoffUntil = s.backoffUntil
			break
		}

		e.consecutiveErrors++
		e.nextDue = now.Add(s.jitter(e.job.Interval))
		s.recorder.RecordConsecutiveErrors(e.job.Name, e.consecutiveErrors)
		s.logger.Warn("endpoint fetch failed",
			"endpoint", e.job.Name,
			"consecutive_errors", e.consecutiveErrors,
			"error", err.Error(),
		)
	}

	if len(rep.Attempted) > 0 && len(rep.Failed) == len(rep.Attempted) && !s.everSucceeded() {
		return rep, fmt.Errorf("%w: %w", ErrUpdateFailed, lastErr)
	}
	return rep, nil
}

// run calls the job with panic recovery. A panicking job is logged with a
// correlation ID and reported as an ordinary failure.
func (s *Scheduler) run(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("endpoint handler panic",
				"endpoint", e.job.Name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("endpoint handler panic (correlation_id: %s)", correlationID)
		}
	}()
	// shutdown stops the cycle between jobs, never in the middle of one
	return e.job.Run(context.WithoutCancel(ctx))
}

// trip opens the breaker and pushes every job past the backoff window,
// re-applying the start-up stagger.
func (s *Scheduler) trip(now time.Time, job string) {
	s.backoffUntil = now.Add(s.backoff)
	for i, e := range s.entries {
		e.nextDue = s.backoffUntil.Add(time.Duration(i) * s.stagger)
	}
	s.lastBackoffLog = now
	s.recorder.RecordBackoff(true)
	s.logger.Error("HTTP 403 received, pausing all requests; check credentials and rate limits",
		"endpoint", job,
		"backoff", s.backoff.String(),
		"until", s.backoffUntil.Format(time.RFC3339),
	)
}

func (s *Scheduler) logBackoff(now time.Time) {
	if now.Sub(s.lastBackoffLog) < backoffLogEvery {
		return
	}
	s.lastBackoffLog = now
	s.logger.Warn("403 backoff active, all requests paused",
		"remaining_min", int(s.backoffUntil.Sub(now)/time.Minute),
	)
}

func (s *Scheduler) everSucceeded() bool {
	for _, e := range s.entries {
		if !e.lastSuccess.IsZero() {
			return true
		}
	}
	return false
}

// statusCoder is implemented by upstream errors that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

func isForbidden(err error) bool {
	var sc statusCoder
	return errors.As(err, &sc) && sc.StatusCode() == http.StatusForbidden
}

// EndpointHealth is the diagnostic record for one job.
type EndpointHealth struct {
	Name              string
	Interval          time.Duration
	NextDue           time.Time
	ConsecutiveErrors int
	// LastSuccess is zero until the first successful run.
	LastSuccess time.Time
	LastError   string
}

// Health is a point-in-time snapshot of the scheduler.
type Health struct {
	State State

	// Connected is true when some job succeeded within the staleness threshold.
	Connected bool

	// TotalErrors sums the consecutive error counters of all jobs.
	TotalErrors int

	BackoffUntil     time.Time
	BackoffRemaining time.Duration

	// Endpoints is in declaration order.
	Endpoints []EndpointHealth
}

// Health returns the current diagnostics.
func (s *Scheduler) Health() Health {
	now := s.now()
	h := Health{
		State:     StateActive,
		Endpoints: make([]EndpointHealth, 0, len(s.entries)),
	}
	if now.Before(s.backoffUntil) {
		h.State = StateBackoff
		h.BackoffUntil = s.backoffUntil
		h.BackoffRemaining = s.backoffUntil.Sub(now)
	}

	for _, e := range s.entries {
		h.TotalErrors += e.consecutiveErrors
		if !e.lastSuccess.IsZero() && now.Sub(e.lastSuccess) < s.staleAfter {
			h.Connected = true
		}
		h.Endpoints = append(h.Endpoints, EndpointHealth{
			Name:              e.job.Name,
			Interval:          e.job.Interval,
			NextDue:           e.nextDue,
			ConsecutiveErrors: e.consecutiveErrors,
			LastSuccess:       e.lastSuccess,
			LastError:         e.lastError,
		})
	}
	return h
}
