package queue

import "errors"

var (
	// ErrStopped rejects Add or Run on a stopped queue.
	ErrStopped = errors.New("queue stopped")

	// ErrBusy rejects calls that would race an in-progress run.
	ErrBusy = errors.New("queue run in progress")

	// ErrCompleted rejects Add or Run after the queue has drained.
	ErrCompleted = errors.New("queue already completed")
)
