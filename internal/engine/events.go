package engine

import "time"

// EventKind identifies a node lifecycle notification.
type EventKind string

const (
	EventStarted  EventKind = "node.started"
	EventProgress EventKind = "node.progress"
	EventFinished EventKind = "node.finished"
	EventError    EventKind = "node.error"
)

// Event is a single lifecycle notification for one node of a run.
type Event struct {
	Kind       EventKind `json:"kind"`
	RunID      string    `json:"run_id,omitempty"`
	Node       NodeInfo  `json:"node"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	Iteration  int       `json:"iteration,omitempty"` // loop progress, 1-based
	Total      int       `json:"total,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// EventSink receives node lifecycle events. It is purely observational:
// the engine never reads anything back from it.
//
// Notify is called synchronously from the run's goroutine and should not
// block.
type EventSink interface {
	Notify(ev Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev Event)

// Notify implements EventSink.
func (f SinkFunc) Notify(ev Event) { f(ev) }

// MultiSink fans an event out to several sinks in order. Nil entries are skipped.
type MultiSink []EventSink

// Notify implements EventSink.
func (m MultiSink) Notify(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(ev)
		}
	}
}

type noopSink struct{}

func (noopSink) Notify(Event) {}
