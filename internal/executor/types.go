package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxRetryDelay = 15 * time.Second

// Task is a unit of work. It must honor ctx cancellation to be stoppable;
// a body that ignores ctx is abandoned (not killed) after a timeout.
type Task[T any] func(ctx context.Context) (T, error)

// Options control one Run invocation.
//
// Zero values are replaced with defaults in withDefaults.
type Options struct {
	// Concurrency is the maximum number of attempts in flight at once.
	Concurrency int

	// Retries is the number of re-attempts after the first failure,
	// so a task is tried at most Retries+1 times.
	Retries int

	// RetryDelay is the backoff before attempt 2. With ExponentialBackoff
	// the delay doubles per attempt, capped at MaxRetryDelay.
	RetryDelay         time.Duration
	ExponentialBackoff bool
	MaxRetryDelay      time.Duration

	// Timeout bounds a single attempt. Zero means no attempt timeout.
	Timeout time.Duration

	// StartLimit optionally throttles how fast new tasks may start.
	StartLimit *rate.Limiter

	// OnTaskStart and OnTaskDone are invoked by the dispatch workers when a
	// task begins its first attempt and when its final result is known.
	// Used by the queue layer for progress accounting; may be nil.
	OnTaskStart func(index int)
	OnTaskDone  func(index int, ok bool)
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.ExponentialBackoff && o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = defaultMaxRetryDelay
	}
	return o
}

// Attempt records one failed try that was followed by another try. The
// terminal attempt is never recorded here: its error becomes Result.Err.
// Downstream aggregation counts on that asymmetry.
type Attempt struct {
	// Attempt is the 1-based attempt number.
	Attempt int

	Err error

	// Delay is the backoff waited before this attempt (zero for attempt 1).
	Delay time.Duration

	// Duration is the execution time of this attempt, backoff excluded.
	Duration time.Duration

	Start    time.Time
	TimedOut bool
}

// Result is the outcome of one task after all attempts.
type Result[T any] struct {
	OK    bool
	Value T
	Err   error

	// Index is the task's submission index within the Run call.
	Index int

	// Attempts is how many times the body actually ran (>= 1 once
	// dispatched; 0 only when the run was cancelled before dispatch).
	Attempts int

	// Duration is the summed execution time across attempts. Backoff and
	// queue wait time are excluded.
	Duration time.Duration

	// TimedOut reports whether the terminal error was an attempt timeout.
	TimedOut bool

	// History holds one record per attempt that was retried afterwards.
	// Nil when the task succeeded on the first attempt.
	History []Attempt
}

// TimeoutError is returned for an attempt that outlived Options.Timeout.
// It is retried like any other task error.
type TimeoutError struct {
	After   time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("attempt timed out after %s", e.After)
}

// IsTimeout reports whether err is (or wraps) an attempt timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
