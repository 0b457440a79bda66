package queue

import (
	"time"

	"taskrun/internal/executor"
	"taskrun/internal/summary"
)

// EventType names one lifecycle signal. The vocabulary is fixed.
type EventType string

const (
	EventStart         EventType = "start"
	EventBatchStart    EventType = "batchStart"
	EventBatchComplete EventType = "batchComplete"
	EventProgress      EventType = "progress"
	EventPause         EventType = "pause"
	EventResume        EventType = "resume"
	EventStop          EventType = "stop"
	EventClear         EventType = "clear"
	EventComplete      EventType = "complete"
)

// Event is delivered to handlers as signals occur. Data holds the typed
// payload for the event, or nil for the bare signals (pause/resume/stop/clear).
type Event struct {
	Type EventType
	Time time.Time
	Data any
}

// Handler observes queue lifecycle events. Handlers run inline on whichever
// goroutine emits the event; they should return quickly and must not call
// back into the queue's mutating methods.
type Handler func(Event)

// StartData accompanies EventStart.
type StartData struct {
	Total int
}

// BatchStartData accompanies EventBatchStart. Numbering is 1-based.
type BatchStartData struct {
	Number int
	Size   int
}

// BatchCompleteData accompanies EventBatchComplete.
type BatchCompleteData[T any] struct {
	Number  int
	Results []executor.Result[T]
}

// ProgressData accompanies EventProgress after each task settles.
type ProgressData struct {
	Completed int
	Total     int
	Running   int
}

// CompleteData accompanies EventComplete.
type CompleteData struct {
	Summary summary.Summary
}

// On registers a handler for one event type. Handlers fire in registration
// order. Registering while a run is in progress is allowed but the handler
// only sees events emitted after registration.
func (q *Queue[T]) On(t EventType, h Handler) {
	if h == nil {
		return
	}
	q.hmu.Lock()
	if q.handlers == nil {
		q.handlers = map[EventType][]Handler{}
	}
	q.handlers[t] = append(q.handlers[t], h)
	q.hmu.Unlock()
}

func (q *Queue[T]) emit(t EventType, data any) {
	q.hmu.Lock()
	hs := q.handlers[t]
	if len(hs) > 0 {
		hs = append([]Handler(nil), hs...)
	}
	q.hmu.Unlock()

	if len(hs) == 0 {
		return
	}
	e := Event{Type: t, Time: time.Now(), Data: data}
	for _, h := range hs {
		h(e)
	}
}
