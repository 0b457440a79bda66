// Package queue buffers tasks with metadata and dispatches them through the
// executor with optional priority ordering, batching, and pause/resume/stop
// control.
//
// # Lifecycle
//
// A queue moves through {Idle, Running, Paused, Stopped, Completed}. Run is a
// one-shot: entries are added while Idle, Run drains them, and the queue ends
// Completed (or Stopped). Stopped and Completed are terminal.
//
// Pause, Stop and the on-error policies take effect only at batch boundaries;
// a batch already handed to the executor always drains to completion. In
// unbatched mode there are no boundaries, so they cannot take effect at all.
// That is an intentional limitation of the design, not a bug: adding true
// mid-flight cancellation would be an explicit extension.
//
// # Events
//
// Lifecycle events are delivered synchronously to handlers registered with
// On, in registration order, exactly once per occurrence, in-process only.
// The queue does not wait for any effect a handler may have elsewhere.
package queue
