package taskdef

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"taskrun/internal/executor"
)

// sleepTask is a synthetic body for demos and smoke tests: it sleeps for the
// configured duration, then succeeds or fails according to its failure plan.
// fail_first counts attempts per task instance, so a retried task can be made
// to recover on a specific attempt.
func sleepTask(def Definition) (executor.Task[string], error) {
	d, err := parseOptionalDuration("sleep", def.Sleep)
	if err != nil {
		return nil, err
	}

	var attempts atomic.Int32
	return func(ctx context.Context) (string, error) {
		if d > 0 {
			tmr := time.NewTimer(d)
			defer tmr.Stop()
			select {
			case <-tmr.C:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if def.FailAll {
			return "", errors.New("sleep: planned failure")
		}
		if n := attempts.Add(1); int(n) <= def.FailFirst {
			return "", errors.New("sleep: planned transient failure")
		}
		return "slept " + d.String(), nil
	}, nil
}
