package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func noJitter(d time.Duration) time.Duration { return d }

// statusError mimics an upstream HTTP error.
type statusError int

func (e statusError) Error() string   { return fmt.Sprintf("HTTP %d", int(e)) }
func (e statusError) StatusCode() int { return int(e) }

// counter counts runs per job and returns a canned error for each.
type counter struct {
	mu   sync.Mutex
	runs map[string]int
	errs map[string]error
}

func newCounter() *counter {
	return &counter{runs: map[string]int{}, errs: map[string]error{}}
}

func (c *counter) job(name string, interval time.Duration) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.runs[name]++
			return c.errs[name]
		},
	}
}

func (c *counter) fail(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[name] = err
}

func (c *counter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[name]
}

func mustScheduler(t *testing.T, jobs []Job, opts ...Option) *Scheduler {
	t.Helper()
	s, err := NewScheduler(jobs, testLogger(), opts...)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s
}

func healthOf(t *testing.T, h Health, name string) EndpointHealth {
	t.Helper()
	for _, e := range h.Endpoints {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("no health record for %q", name)
	return EndpointHealth{}
}

func TestNewScheduler_Validation(t *testing.T) {
	run := func(context.Context) error { return nil }

	tests := []struct {
		name    string
		jobs    []Job
		wantErr string
	}{
		{"no jobs", nil, "at least one job"},
		{"missing name", []Job{{Interval: time.Minute, Run: run}}, "name is required"},
		{"duplicate", []Job{
			{Name: "a", Interval: time.Minute, Run: run},
			{Name: "a", Interval: time.Minute, Run: run},
		}, "duplicate job name"},
		{"zero interval", []Job{{Name: "a", Run: run}}, "interval must be positive"},
		{"nil run", []Job{{Name: "a", Interval: time.Minute}}, "run function is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScheduler(tt.jobs, testLogger())
			if err == nil {
				t.Fatal("NewScheduler() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestScheduler_InitialStagger verifies job i first runs at start + i*stagger.
func TestScheduler_InitialStagger(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	names := []string{"a", "b", "c"}
	var jobs []Job
	for _, n := range names {
		jobs = append(jobs, c.job(n, time.Hour))
	}
	s := mustScheduler(t, jobs, WithClock(clock.Now), WithJitter(noJitter))

	for i, n := range names {
		rep, err := s.RunCycle(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: error = %v", i, err)
		}
		if len(rep.Attempted) != 1 || rep.Attempted[0] != n {
			t.Errorf("cycle %d: attempted = %v, want [%s]", i, rep.Attempted, n)
		}
		clock.Advance(DefaultStagger)
	}
}

func TestScheduler_ZeroStaggerRunsAllInOrder(t *testing.T) {
	clock := newFakeClock()
	var order []string
	var jobs []Job
	for _, n := range []string{"matrix", "watch", "most_wanted"} {
		jobs = append(jobs, Job{Name: n, Interval: time.Hour, Run: func(context.Context) error {
			order = append(order, n)
			return nil
		}})
	}
	s := mustScheduler(t, jobs, WithClock(clock.Now), WithStagger(0))

	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if strings.Join(order, ",") != "matrix,watch,most_wanted" {
		t.Errorf("order = %v", order)
	}
}

// TestScheduler_ForbiddenOpensBreaker covers the 403 path: the cycle stops,
// every job moves past the backoff window with its stagger re-applied, and
// nothing runs until the window ends.
func TestScheduler_ForbiddenOpensBreaker(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	c.fail("b", statusError(http.StatusForbidden))
	jobs := []Job{c.job("a", time.Hour), c.job("b", time.Hour), c.job("c", time.Hour)}
	s := mustScheduler(t, jobs, WithClock(clock.Now), WithJitter(noJitter))

	clock.Advance(10 * time.Second) // all three due
	tripAt := clock.Now()

	rep, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v (a succeeded, no escalation expected)", err)
	}
	if rep.Tripped != "b" {
		t.Errorf("Tripped = %q, want b", rep.Tripped)
	}
	if c.count("c") != 0 {
		t.Error("job after the 403 should not run in the same cycle")
	}
	wantUntil := tripAt.Add(DefaultBackoff)
	if !rep.BackoffUntil.Equal(wantUntil) {
		t.Errorf("BackoffUntil = %v, want %v", rep.BackoffUntil, wantUntil)
	}

	h := s.Health()
	if h.State != StateBackoff {
		t.Errorf("State = %v, want backoff", h.State)
	}
	if h.BackoffRemaining != DefaultBackoff {
		t.Errorf("BackoffRemaining = %v, want %v", h.BackoffRemaining, DefaultBackoff)
	}
	for i, e := range h.Endpoints {
		want := wantUntil.Add(time.Duration(i) * DefaultStagger)
		if !e.NextDue.Equal(want) {
			t.Errorf("%s NextDue = %v, want %v", e.Name, e.NextDue, want)
		}
	}
	b := healthOf(t, h, "b")
	if b.ConsecutiveErrors != 0 {
		t.Errorf("403 should not bump the error counter, got %d", b.ConsecutiveErrors)
	}
	if !strings.Contains(b.LastError, "403") {
		t.Errorf("LastError = %q, want 403", b.LastError)
	}

	// mid-backoff: nothing runs
	clock.Advance(30 * time.Minute)
	rep, err = s.RunCycle(context.Background())
	if err != nil || !rep.Skipped || len(rep.Attempted) != 0 {
		t.Errorf("during backoff: rep = %+v, err = %v", rep, err)
	}

	// backoff over, stagger re-applied
	c.fail("b", nil)
	clock.Advance(30*time.Minute + time.Second)
	rep, _ = s.RunCycle(context.Background())
	if strings.Join(rep.Attempted, ",") != "a" {
		t.Errorf("first cycle after backoff attempted %v, want [a]", rep.Attempted)
	}
	if s.Health().State != StateActive {
		t.Error("State should be active after the backoff expires")
	}

	clock.Advance(10 * time.Second)
	rep, _ = s.RunCycle(context.Background())
	if strings.Join(rep.Attempted, ",") != "b,c" {
		t.Errorf("attempted %v, want [b c]", rep.Attempted)
	}
}

// TestScheduler_ErrorIsolation verifies one failing job does not affect the
// others or the overall result.
func TestScheduler_ErrorIsolation(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	c.fail("watch", statusError(http.StatusInternalServerError))
	jobs := []Job{c.job("matrix", time.Minute), c.job("watch", time.Minute)}
	s := mustScheduler(t, jobs, WithClock(clock.Now), WithJitter(noJitter), WithStagger(0))

	for i := 0; i < 5; i++ {
		if _, err := s.RunCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: error = %v", i, err)
		}
		clock.Advance(time.Minute)
	}

	h := s.Health()
	if got := healthOf(t, h, "watch").ConsecutiveErrors; got != 5 {
		t.Errorf("watch ConsecutiveErrors = %d, want 5", got)
	}
	if got := healthOf(t, h, "matrix").ConsecutiveErrors; got != 0 {
		t.Errorf("matrix ConsecutiveErrors = %d, want 0", got)
	}
	if h.TotalErrors != 5 {
		t.Errorf("TotalErrors = %d, want 5", h.TotalErrors)
	}
	if !h.Connected {
		t.Error("Connected = false, want true")
	}
	if c.count("matrix") != 5 {
		t.Errorf("matrix ran %d times, want 5", c.count("matrix"))
	}

	// a success resets the counter
	c.fail("watch", nil)
	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	w := healthOf(t, s.Health(), "watch")
	if w.ConsecutiveErrors != 0 || w.LastError != "" || w.LastSuccess.IsZero() {
		t.Errorf("after success: %+v", w)
	}
}

func TestScheduler_AllFailWithoutHistory(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	names := []string{"matrix", "watch", "most_wanted", "expeditions", "livestreams", "activity"}
	var jobs []Job
	for _, n := range names {
		jobs = append(jobs, c.job(n, time.Hour))
		c.fail(n, statusError(http.StatusBadGateway))
	}
	last := errors.New("activity exploded")
	c.fail("activity", last)
	s := mustScheduler(t, jobs, WithClock(clock.Now), WithStagger(0))

	rep, err := s.RunCycle(context.Background())
	if !errors.Is(err, ErrUpdateFailed) {
		t.Fatalf("error = %v, want ErrUpdateFailed", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("error = %v, want wrapping the last failure", err)
	}
	if len(rep.Failed) != len(names) {
		t.Errorf("Failed = %v, want all %d", rep.Failed, len(names))
	}
	if s.Health().TotalErrors != len(names) {
		t.Errorf("TotalErrors = %d, want %d", s.Health().TotalErrors, len(names))
	}
}

// TestScheduler_AllFailWithHistory checks that an earlier success keeps a
// fully failing cycle from escalating, even once that success is stale.
func TestScheduler_AllFailWithHistory(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	s := mustScheduler(t, []Job{c.job("matrix", time.Hour)}, WithClock(clock.Now), WithJitter(noJitter))

	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	c.fail("matrix", statusError(http.StatusInternalServerError))
	clock.Advance(3 * time.Hour)
	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Errorf("error = %v, want nil with a prior success", err)
	}
	if s.Health().Connected {
		t.Error("Connected = true with only a stale success")
	}
}

func TestScheduler_ForbiddenOnFirstCycleEscalates(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	c.fail("matrix", statusError(http.StatusForbidden))
	s := mustScheduler(t, []Job{c.job("matrix", time.Hour), c.job("watch", time.Hour)},
		WithClock(clock.Now), WithStagger(0))

	_, err := s.RunCycle(context.Background())
	if !errors.Is(err, ErrUpdateFailed) {
		t.Errorf("error = %v, want ErrUpdateFailed", err)
	}
	if c.count("watch") != 0 {
		t.Error("watch should not run after the 403")
	}
}

func TestScheduler_NothingDueIsNotAFailure(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	s := mustScheduler(t, []Job{c.job("a", time.Hour), c.job("b", time.Hour)}, WithClock(clock.Now))

	// a is due at start, b only after the stagger; run a first so it is not due
	c.fail("a", statusError(http.StatusInternalServerError))
	if _, err := s.RunCycle(context.Background()); !errors.Is(err, ErrUpdateFailed) {
		t.Fatalf("first cycle error = %v, want ErrUpdateFailed", err)
	}
	rep, err := s.RunCycle(context.Background())
	if err != nil || len(rep.Attempted) != 0 {
		t.Errorf("idle cycle: rep = %+v, err = %v", rep, err)
	}
}

func TestScheduler_ConnectedThreshold(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	s := mustScheduler(t, []Job{c.job("a", 24*time.Hour)}, WithClock(clock.Now))

	if s.Health().Connected {
		t.Error("Connected before any success")
	}
	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(DefaultStaleAfter - time.Second)
	if !s.Health().Connected {
		t.Error("Connected = false just inside the threshold")
	}
	clock.Advance(time.Second)
	if s.Health().Connected {
		t.Error("Connected = true at the threshold")
	}
}

func TestScheduler_RescheduleUsesJitter(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	c.fail("b", errors.New("boom"))
	double := func(d time.Duration) time.Duration { return 2 * d }
	s := mustScheduler(t, []Job{c.job("a", time.Minute), c.job("b", time.Minute)},
		WithClock(clock.Now), WithJitter(double), WithStagger(0))

	now := clock.Now()
	_, _ = s.RunCycle(context.Background())
	for _, e := range s.Health().Endpoints {
		if want := now.Add(2 * time.Minute); !e.NextDue.Equal(want) {
			t.Errorf("%s NextDue = %v, want %v", e.Name, e.NextDue, want)
		}
	}
}

// TestScheduler_PanicRecovery verifies a panicking job is reported as a
// failure and does not stop the cycle.
func TestScheduler_PanicRecovery(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	jobs := []Job{
		{Name: "bad", Interval: time.Hour, Run: func(context.Context) error { panic("nil map") }},
		c.job("good", time.Hour),
	}
	s := mustScheduler(t, jobs, WithClock(clock.Now), WithStagger(0))

	rep, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if strings.Join(rep.Failed, ",") != "bad" || strings.Join(rep.Succeeded, ",") != "good" {
		t.Errorf("rep = %+v", rep)
	}
	if got := healthOf(t, s.Health(), "bad").LastError; !strings.Contains(got, "correlation_id") {
		t.Errorf("LastError = %q, want correlation id", got)
	}
}

func TestScheduler_CancelledBeforeCycle(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	s := mustScheduler(t, []Job{c.job("a", time.Hour)}, WithClock(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RunCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if c.count("a") != 0 {
		t.Error("job ran after cancellation")
	}
}

// TestScheduler_CancelDuringJob verifies a running job finishes with a live
// context and the cycle stops before the next one.
func TestScheduler_CancelDuringJob(t *testing.T) {
	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sawCancelled bool
	var secondRan bool
	jobs := []Job{
		{Name: "first", Interval: time.Hour, Run: func(jobCtx context.Context) error {
			cancel()
			sawCancelled = jobCtx.Err() != nil
			return nil
		}},
		{Name: "second", Interval: time.Hour, Run: func(context.Context) error {
			secondRan = true
			return nil
		}},
	}
	s := mustScheduler(t, jobs, WithClock(clock.Now), WithStagger(0))

	rep, err := s.RunCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if sawCancelled {
		t.Error("in-flight job saw a cancelled context")
	}
	if secondRan {
		t.Error("second job ran after shutdown was requested")
	}
	if strings.Join(rep.Succeeded, ",") != "first" {
		t.Errorf("Succeeded = %v, want [first]", rep.Succeeded)
	}
}

func TestScheduler_BackoffLogThrottled(t *testing.T) {
	clock := newFakeClock()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	c := newCounter()
	c.fail("a", statusError(http.StatusForbidden))
	s, err := NewScheduler([]Job{c.job("a", time.Hour)}, logger, WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	_, _ = s.RunCycle(context.Background())

	// 20 minutes of 30s wakes: reminders at +5, +10, +15 and +20 minutes
	for i := 0; i < 40; i++ {
		clock.Advance(30 * time.Second)
		_, _ = s.RunCycle(context.Background())
	}

	if got := strings.Count(buf.String(), "backoff active"); got != 4 {
		t.Errorf("backoff reminders = %d, want 4", got)
	}
}

// recorder captures events for assertions.
type recorder struct {
	fetches  map[string]int
	failures map[string]int
	streak   map[string]int
	backoff  []bool
}

func newRecorder() *recorder {
	return &recorder{fetches: map[string]int{}, failures: map[string]int{}, streak: map[string]int{}}
}

func (r *recorder) RecordFetch(job string, _ time.Duration, err error) {
	r.fetches[job]++
	if err != nil {
		r.failures[job]++
	}
}
func (r *recorder) RecordConsecutiveErrors(job string, n int) { r.streak[job] = n }
func (r *recorder) RecordBackoff(active bool)                 { r.backoff = append(r.backoff, active) }

func TestScheduler_Recorder(t *testing.T) {
	clock := newFakeClock()
	c := newCounter()
	c.fail("b", errors.New("boom"))
	rec := newRecorder()
	s := mustScheduler(t, []Job{c.job("a", time.Minute), c.job("b", time.Minute)},
		WithClock(clock.Now), WithJitter(noJitter), WithStagger(0), WithRecorder(rec))

	_, _ = s.RunCycle(context.Background())
	if rec.fetches["a"] != 1 || rec.fetches["b"] != 1 || rec.failures["b"] != 1 {
		t.Errorf("fetches = %v, failures = %v", rec.fetches, rec.failures)
	}
	if rec.streak["b"] != 1 || rec.streak["a"] != 0 {
		t.Errorf("streak = %v", rec.streak)
	}

	c.fail("a", statusError(http.StatusForbidden))
	clock.Advance(time.Minute)
	_, _ = s.RunCycle(context.Background())
	c.fail("a", nil)
	clock.Advance(DefaultBackoff)
	_, _ = s.RunCycle(context.Background())

	if len(rec.backoff) != 2 || !rec.backoff[0] || rec.backoff[1] {
		t.Errorf("backoff events = %v, want [true false]", rec.backoff)
	}
}
