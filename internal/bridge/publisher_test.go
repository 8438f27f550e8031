package bridge

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/gray-macro-core/internal/engine"
)

func TestEventPublisher_Notify(t *testing.T) {
	tr := newMockTransport(nil)
	p := NewEventPublisher(tr, nil)
	p.Start()

	p.Notify(engine.Event{Kind: engine.EventStarted, RunID: "run-1", Node: engine.NodeInfo{Type: "click", Position: 3}})
	p.Notify(engine.Event{Kind: engine.EventFinished, RunID: "run-1", Outcome: engine.Succeeded})
	p.Notify(engine.Event{Kind: engine.EventStarted}) // no run id: skipped
	p.Close()

	want := []string{"graymacro/core/run/run-1/event", "graymacro/core/run/run-1/event"}
	if diff := cmp.Diff(want, tr.topics()); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}

	var ev engine.Event
	if err := json.Unmarshal(tr.payloads()[0], &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Kind != engine.EventStarted || ev.Node.Position != 3 {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventPublisher_Broadcast(t *testing.T) {
	tr := newMockTransport(nil)
	p := NewEventPublisher(tr, nil)
	p.Start()

	p.Broadcast("macro.run.finished", map[string]any{"macro_id": "m-1", "status": "succeeded"})
	p.Broadcast("macro.run.finished", map[string]any{"status": "orphan"})
	p.Broadcast("macro.run.finished", "not a map")
	p.Close()

	if diff := cmp.Diff([]string{"graymacro/core/macro/m-1/run"}, tr.topics()); diff != "" {
		t.Fatalf("topics mismatch (-want +got):\n%s", diff)
	}
	var notice struct {
		Channel string         `json:"channel"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(tr.payloads()[0], &notice); err != nil {
		t.Fatalf("decoding notice: %v", err)
	}
	if notice.Channel != "macro.run.finished" || notice.Payload["status"] != "succeeded" {
		t.Errorf("notice = %+v", notice)
	}
}

func TestEventPublisher_DropsWhenFullOrClosed(t *testing.T) {
	tr := newMockTransport(nil)
	p := NewEventPublisher(tr, nil)
	// Not started: the queue fills and further events are dropped.
	for i := 0; i < eventBufferSize+5; i++ {
		p.Notify(engine.Event{Kind: engine.EventProgress, RunID: "run-1"})
	}
	if p.Dropped() != 5 {
		t.Errorf("Dropped() = %d, want 5", p.Dropped())
	}

	p.Start()
	p.Close()
	if got := len(tr.topics()); got != eventBufferSize {
		t.Errorf("published %d queued events, want %d", got, eventBufferSize)
	}

	p.Notify(engine.Event{Kind: engine.EventProgress, RunID: "run-1"})
	if p.Dropped() != 6 {
		t.Errorf("Dropped() after Close = %d, want 6", p.Dropped())
	}
	p.Close() // idempotent
}

func TestEventPublisher_PublishErrorsLogged(t *testing.T) {
	tr := newMockTransport(nil)
	tr.publishErr = errBrokerDown
	logger := &countingLogger{}
	p := NewEventPublisher(tr, logger)
	p.Start()
	p.Notify(engine.Event{Kind: engine.EventError, RunID: "run-1"})
	p.Close()

	if logger.warns != 1 {
		t.Errorf("warns = %d, want 1", logger.warns)
	}
}

type countingLogger struct{ warns int }

func (*countingLogger) Debug(string, ...any)   {}
func (l *countingLogger) Warn(string, ...any) { l.warns++ }
func (*countingLogger) Error(string, ...any)   {}
