package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-macro-core/internal/engine"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client the event publisher needs.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// eventBufferSize bounds queued messages; when full, new ones are dropped.
const eventBufferSize = 256

type outbound struct {
	topic   string
	payload any
}

// runNotice is the body published for run start and finish notices.
type runNotice struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

// EventPublisher mirrors engine events and run notices onto MQTT.
//
// It implements engine.EventSink and the runner's hub interface. Notify
// and Broadcast never block the run: messages are queued and published
// from a single goroutine started by Start.
type EventPublisher struct {
	pub    Publisher
	logger Logger
	queue  chan outbound

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewEventPublisher creates a publisher. Call Start before use and Close on shutdown.
func NewEventPublisher(pub Publisher, logger Logger) *EventPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EventPublisher{
		pub:    pub,
		logger: logger,
		queue:  make(chan outbound, eventBufferSize),
	}
}

// Start launches the publishing goroutine.
func (p *EventPublisher) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for msg := range p.queue {
			if err := p.pub.PublishJSON(msg.topic, msg.payload); err != nil {
				p.logger.Warn("failed to publish event", "topic", msg.topic, "error", err)
			}
		}
	}()
}

// Close drains queued messages and stops the goroutine.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Dropped returns how many messages were discarded because the queue was full.
func (p *EventPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Notify implements engine.EventSink.
func (p *EventPublisher) Notify(ev engine.Event) {
	if ev.RunID == "" {
		return
	}
	p.enqueue(mqtt.Topics{}.CoreRunEvent(ev.RunID), ev)
}

// Broadcast publishes a run notice on the macro's run topic. Payloads
// without a macro_id are ignored.
func (p *EventPublisher) Broadcast(channel string, payload any) {
	fields, ok := payload.(map[string]any)
	if !ok {
		return
	}
	macroID, _ := fields["macro_id"].(string)
	if macroID == "" {
		return
	}
	p.enqueue(mqtt.Topics{}.CoreMacroRun(macroID), runNotice{Channel: channel, Payload: payload})
}

func (p *EventPublisher) enqueue(topic string, payload any) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}
	select {
	case p.queue <- outbound{topic: topic, payload: payload}:
	default:
		p.dropped.Add(1)
	}
}

var _ engine.EventSink = (*EventPublisher)(nil)
