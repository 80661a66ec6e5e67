// Package poller schedules the upstream fetches of the bridge.
//
// A [Scheduler] owns one [Job] per ClubLog resource. The caller wakes it on a
// fixed cadence with [Scheduler.RunCycle]; each cycle runs whichever jobs are
// due, one at a time and in declaration order, and reschedules them with
// [Jitter] applied to their interval.
//
// A job failing with HTTP 403 opens a process-wide circuit breaker: every job
// is suspended for [DefaultBackoff] and then resumes with the start-up
// stagger re-applied. Other failures are isolated to the job that produced
// them.
//
// [Scheduler.Health] exposes connectivity, error counters and per-job
// diagnostics.
package poller
