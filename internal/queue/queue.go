package queue

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"taskrun/internal/executor"
	"taskrun/internal/summary"
)

// Queue buffers tasks and runs them through the executor.
//
// Add and Run must not be called concurrently on the same instance
// (single-writer discipline); the control methods Pause/Resume/Stop and the
// read-only Status are safe from any goroutine.
type Queue[T any] struct {
	mu      sync.Mutex
	opts    Options
	log     *slog.Logger
	limiter *rate.Limiter

	entries  []entry[T]
	state    State
	resumeCh chan struct{} // non-nil while Paused; closed by Resume/Stop

	hmu      sync.Mutex
	handlers map[EventType][]Handler

	running   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New returns an idle queue. opts apply to every batch the queue dispatches.
func New[T any](opts Options, log *slog.Logger) *Queue[T] {
	if log == nil {
		log = slog.Default()
	}
	q := &Queue[T]{opts: opts, log: log}
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return q
}

// Add enqueues a task with metadata and returns its submission index. The
// index permanently identifies the submission: results[index] in the slice
// returned by Run belongs to this task even after priority reordering.
func (q *Queue[T]) Add(task executor.Task[T], meta Meta) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case Stopped:
		return 0, ErrStopped
	case Running, Paused:
		return 0, ErrBusy
	case Completed:
		return 0, ErrCompleted
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	idx := len(q.entries)
	q.entries = append(q.entries, entry[T]{task: task, meta: meta, index: idx})
	return idx, nil
}

// Meta returns the metadata recorded for a submission index.
func (q *Queue[T]) Meta(index int) (Meta, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.entries) {
		return Meta{}, false
	}
	return q.entries[index].meta, true
}

// Pause requests that no new batch starts until Resume. The batch currently
// dispatched, if any, still drains to completion.
func (q *Queue[T]) Pause() {
	q.mu.Lock()
	if q.state != Running {
		q.mu.Unlock()
		return
	}
	q.state = Paused
	q.resumeCh = make(chan struct{})
	q.mu.Unlock()

	q.log.Debug("queue paused")
	q.emit(EventPause, nil)
}

// Resume wakes a paused run loop.
func (q *Queue[T]) Resume() {
	q.mu.Lock()
	if q.state != Paused {
		q.mu.Unlock()
		return
	}
	q.state = Running
	close(q.resumeCh)
	q.resumeCh = nil
	q.mu.Unlock()

	q.log.Debug("queue resumed")
	q.emit(EventResume, nil)
}

// Stop moves the queue to its terminal Stopped state. Work already dispatched
// is never interrupted; the run loop notices at the next batch boundary.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.state == Stopped || q.state == Completed {
		q.mu.Unlock()
		return
	}
	if q.resumeCh != nil {
		close(q.resumeCh)
		q.resumeCh = nil
	}
	q.state = Stopped
	q.mu.Unlock()

	q.log.Debug("queue stopped")
	q.emit(EventStop, nil)
}

// Clear drops all pending entries. It fails while a run is in flight.
func (q *Queue[T]) Clear() error {
	q.mu.Lock()
	if q.state == Running || q.state == Paused {
		q.mu.Unlock()
		return ErrBusy
	}
	q.entries = nil
	q.mu.Unlock()

	q.emit(EventClear, nil)
	return nil
}

// Status reports counters and flags for diagnostics.
func (q *Queue[T]) Status() Status {
	q.mu.Lock()
	state := q.state
	pending := len(q.entries)
	q.mu.Unlock()

	running := int(q.running.Load())
	completed := int(q.completed.Load())
	st := Status{
		State:     state,
		Running:   running,
		Completed: completed,
		Failed:    int(q.failed.Load()),
		Paused:    state == Paused,
		Stopped:   state == Stopped,
	}
	st.Pending = pending - completed - running
	if st.Pending < 0 {
		st.Pending = 0
	}
	return st
}

// Run drains the queue. It returns one result slot per submission; slots the
// run never reached (after Stop or ctx cancellation) have Attempts == 0.
// The returned error covers caller misuse only — task failures surface
// exclusively inside their result.
func (q *Queue[T]) Run(ctx context.Context) ([]executor.Result[T], error) {
	q.mu.Lock()
	switch q.state {
	case Running, Paused:
		q.mu.Unlock()
		return nil, ErrBusy
	case Stopped:
		q.mu.Unlock()
		return nil, ErrStopped
	case Completed:
		q.mu.Unlock()
		return nil, ErrCompleted
	}
	q.state = Running
	pending := append([]entry[T](nil), q.entries...)
	q.mu.Unlock()

	total := len(pending)
	q.running.Store(0)
	q.completed.Store(0)
	q.failed.Store(0)

	start := time.Now()
	q.log.Info("queue run started",
		slog.Int("tasks", total),
		slog.Int("concurrency", q.opts.Concurrency),
		slog.Int("batch_size", q.opts.BatchSize))
	q.emit(EventStart, StartData{Total: total})

	if q.opts.Priority {
		// Stable sort keeps insertion order among equal priorities.
		sort.SliceStable(pending, func(i, j int) bool {
			return pending[i].meta.Priority > pending[j].meta.Priority
		})
	}

	results := make([]executor.Result[T], total)
	for i := range results {
		results[i].Index = i
	}

	batches := chunk(pending, q.opts.BatchSize)
	stopped := false

	for bi, batch := range batches {
		if !q.waitAtBoundary(ctx) {
			stopped = true
			break
		}

		q.emit(EventBatchStart, BatchStartData{Number: bi + 1, Size: len(batch)})
		q.log.Debug("batch dispatched", slog.Int("batch", bi+1), slog.Int("size", len(batch)))

		batchResults := q.runBatch(ctx, batch, total)
		failed := false
		for j := range batchResults {
			// Rewrite the executor's batch-local index to the submission index
			// before anyone (results slice or event handlers) sees it.
			batchResults[j].Index = batch[j].index
			results[batch[j].index] = batchResults[j]
			if !batchResults[j].OK {
				failed = true
			}
		}
		q.emit(EventBatchComplete, BatchCompleteData[T]{Number: bi + 1, Results: batchResults})

		// The on-error policies act at batch boundaries only; an unbatched
		// run has none, so its single chunk always drains to completion.
		last := bi == len(batches)-1
		batched := q.opts.BatchSize > 0
		if failed && q.opts.StopOnError && batched {
			q.log.Warn("batch had failures; stopping", slog.Int("batch", bi+1))
			q.Stop()
			stopped = true
			break
		}
		if failed && q.opts.PauseOnError && batched && !last {
			q.log.Warn("batch had failures; pausing", slog.Int("batch", bi+1))
			q.Pause()
		}

		if !last && q.opts.BatchDelay > 0 {
			if !q.sleep(ctx, q.opts.BatchDelay) {
				stopped = true
				break
			}
		}
	}

	end := time.Now()
	if stopped {
		q.Stop() // idempotent; covers the ctx-cancellation paths
		q.log.Info("queue run stopped early",
			slog.Int("completed", int(q.completed.Load())),
			slog.Int("tasks", total))
		return results, nil
	}

	q.mu.Lock()
	if q.state == Stopped {
		// An external Stop landed while the final batch was draining.
		// Stopped is terminal; do not overwrite it or emit complete.
		q.mu.Unlock()
		q.log.Info("queue run stopped early",
			slog.Int("completed", int(q.completed.Load())),
			slog.Int("tasks", total))
		return results, nil
	}
	if q.resumeCh != nil {
		close(q.resumeCh)
		q.resumeCh = nil
	}
	q.state = Completed
	q.mu.Unlock()

	sum := summary.Compute(results, start, end)
	q.log.Info("queue run completed",
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("failed", sum.Failed),
		slog.Duration("elapsed", sum.Elapsed))
	q.emit(EventComplete, CompleteData{Summary: sum})
	return results, nil
}

func (q *Queue[T]) runBatch(ctx context.Context, batch []entry[T], total int) []executor.Result[T] {
	tasks := make([]executor.Task[T], len(batch))
	for i, e := range batch {
		tasks[i] = e.task
	}

	onStart := func(int) { q.running.Add(1) }
	onDone := func(_ int, ok bool) {
		q.running.Add(-1)
		done := q.completed.Add(1)
		if !ok {
			q.failed.Add(1)
		}
		q.emit(EventProgress, ProgressData{
			Completed: int(done),
			Total:     total,
			Running:   int(q.running.Load()),
		})
	}

	return executor.Run(ctx, tasks, q.opts.executorOptions(q.limiter, onStart, onDone))
}

// waitAtBoundary blocks while the queue is paused and reports whether the run
// loop may start the next batch. False means stop (explicit, policy-driven,
// or ctx cancellation).
func (q *Queue[T]) waitAtBoundary(ctx context.Context) bool {
	for {
		q.mu.Lock()
		state := q.state
		ch := q.resumeCh
		q.mu.Unlock()

		switch state {
		case Stopped:
			return false
		case Paused:
			select {
			case <-ch:
			case <-ctx.Done():
				return false
			}
		default:
			if ctx.Err() != nil {
				return false
			}
			return true
		}
	}
}

func (q *Queue[T]) sleep(ctx context.Context, d time.Duration) bool {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-tmr.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// chunk splits entries into contiguous pieces of at most size elements.
// size <= 0 yields a single chunk with everything.
func chunk[T any](entries []entry[T], size int) [][]entry[T] {
	if len(entries) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]entry[T]{entries}
	}
	var out [][]entry[T]
	for len(entries) > size {
		out = append(out, entries[:size])
		entries = entries[size:]
	}
	return append(out, entries)
}
