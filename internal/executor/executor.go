package executor

import (
	"context"
	"sync"
)

// Run executes tasks to completion (success or retry exhaustion) and returns
// exactly len(tasks) results, results[i] belonging to tasks[i].
//
// Tasks are started in submission order whenever a slot is free; completion
// order is nondeterministic for Concurrency > 1. An empty task slice returns
// an empty slice without entering the dispatch loop.
//
// Cancelling ctx does not interrupt attempts already running (beyond the
// cancellation the bodies observe); it stops backoff waits and prevents
// undispatched tasks from starting. Slots for tasks that never started carry
// Attempts == 0 and the cancellation error.
func Run[T any](ctx context.Context, tasks []Task[T], opts Options) []Result[T] {
	opts = opts.withDefaults()

	if len(tasks) == 0 {
		return []Result[T]{}
	}

	results := make([]Result[T], len(tasks))

	workers := opts.Concurrency
	if workers > len(tasks) {
		workers = len(tasks)
	}

	// A shared index feed keeps start order equal to submission order:
	// sends are sequential and the channel is FIFO.
	feed := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range feed {
				results[i] = runTask(ctx, i, tasks[i], opts)
			}
		}()
	}

	for i := range tasks {
		feed <- i
	}
	close(feed)
	wg.Wait()

	return results
}
