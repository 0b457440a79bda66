package executor

import (
	"context"
	"time"
)

// runTask drives the attempt loop for a single task.
func runTask[T any](ctx context.Context, index int, task Task[T], opts Options) Result[T] {
	res := Result[T]{Index: index}

	if err := ctx.Err(); err != nil {
		// Run was cancelled before this task was dispatched.
		res.Err = err
		return res
	}
	if opts.StartLimit != nil {
		if err := opts.StartLimit.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}

	if opts.OnTaskStart != nil {
		opts.OnTaskStart(index)
	}
	if opts.OnTaskDone != nil {
		defer func() { opts.OnTaskDone(index, res.OK) }()
	}

	maxAttempts := opts.Retries + 1
	var waited time.Duration // backoff spent before the current attempt

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out := runAttempt(ctx, task, opts.Timeout)

		res.Attempts = attempt
		res.Duration += out.Duration

		if out.Err == nil {
			res.OK = true
			res.Value = out.Value
			res.Err = nil
			res.TimedOut = false
			return res
		}

		res.Err = out.Err
		res.TimedOut = out.TimedOut

		if attempt == maxAttempts {
			// Terminal attempt: its error stays on the result and is
			// deliberately absent from History.
			return res
		}

		res.History = append(res.History, Attempt{
			Attempt:  attempt,
			Err:      out.Err,
			Delay:    waited,
			Duration: out.Duration,
			Start:    out.Start,
			TimedOut: out.TimedOut,
		})

		delay := backoffDelay(opts, attempt)
		waited = delay
		if delay > 0 {
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				res.Err = ctx.Err()
				res.TimedOut = false
				return res
			case <-tmr.C:
			}
		} else if err := ctx.Err(); err != nil {
			res.Err = err
			res.TimedOut = false
			return res
		}
	}

	return res
}

// backoffDelay computes the wait before attempt completed+1.
//
// Constant policy returns RetryDelay as-is. Exponential policy doubles per
// completed attempt (base, 2*base, 4*base, ...) capped at MaxRetryDelay.
func backoffDelay(opts Options, completed int) time.Duration {
	base := opts.RetryDelay
	if base <= 0 {
		return 0
	}
	if !opts.ExponentialBackoff {
		return base
	}
	max := opts.MaxRetryDelay
	d := base
	for i := 1; i < completed; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}
