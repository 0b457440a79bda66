package executor

import (
	"context"
	"time"
)

// outcome is the settlement of a single attempt.
type outcome[T any] struct {
	Value    T
	Err      error
	Duration time.Duration
	Start    time.Time
	TimedOut bool
}

// runAttempt executes one attempt, racing it against the timeout when one is
// configured.
//
// The body receives a child context that is cancelled when the timer wins, so
// cooperative tasks stop promptly. A body that keeps running anyway settles
// into a buffered channel nobody reads: the late value is dropped and the
// goroutine never blocks.
func runAttempt[T any](ctx context.Context, task Task[T], timeout time.Duration) outcome[T] {
	start := time.Now()

	if timeout <= 0 {
		v, err := task(ctx)
		return outcome[T]{Value: v, Err: err, Duration: time.Since(start), Start: start}
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type settled struct {
		v   T
		err error
	}
	done := make(chan settled, 1)
	go func() {
		v, err := task(attemptCtx)
		done <- settled{v: v, err: err}
	}()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case s := <-done:
		return outcome[T]{Value: s.v, Err: s.err, Duration: time.Since(start), Start: start}
	case <-tmr.C:
		elapsed := time.Since(start)
		return outcome[T]{
			Err:      &TimeoutError{After: timeout, Elapsed: elapsed},
			Duration: elapsed,
			Start:    start,
			TimedOut: true,
		}
	}
}
