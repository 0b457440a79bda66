// Package executor runs a batch of independent tasks under a bounded
// concurrency limit with per-task retry/backoff and per-attempt timeouts.
//
// # Model
//
// A Task is a nullary operation: it takes a context and produces a value or
// an error. Run executes N tasks with at most C attempts in flight at any
// instant and returns exactly N results, where results[i] always corresponds
// to tasks[i] regardless of completion order. Task failures are fully
// contained: one task exhausting its retries never aborts a sibling.
//
// # Retries and timeouts
//
// Each task runs in an attempt loop. Attempt 1 fires immediately; before
// attempt k > 1 the loop sleeps for a constant or exponentially growing
// (capped) delay. When a timeout is configured, every attempt races a timer;
// a timer win is recorded as a *TimeoutError and consumes an attempt like
// any other failure. A task body that ignores cancellation keeps running in
// the background, but its eventual settlement is discarded — the timeout
// verdict for that attempt is final.
package executor
