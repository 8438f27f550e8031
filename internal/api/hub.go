package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-macro-core/internal/engine"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/logging"
	"github.com/nerrad567/gray-macro-core/internal/infrastructure/mqtt"
)

// Hub fans run notices and node events out to connected WebSocket
// clients.
//
// It satisfies macro.WSHub for run notices and engine.EventSink for node
// events. Node events go out on a channel named after the event kind
// (node.started, node.progress, node.finished, node.error); a client that
// subscribed with a run_id only sees node events from that run.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

var _ engine.EventSink = (*Hub)(nil)

// NewHub returns an empty hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
	if len(clients) > 0 {
		h.logger.Debug("websocket hub stopped", "disconnected", len(clients))
	}
}

// Register starts delivering broadcasts to c.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n, "subject", c.subject)
}

// Unregister stops delivery to c and closes its send channel. Repeated
// calls are no-ops, so the read pump and Run can both call it.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(c.send)
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast sends payload as an event on channel to every client
// subscribed to it.
func (h *Hub) Broadcast(channel string, payload any) {
	h.deliver(channel, payload, "")
}

// Notify implements engine.EventSink.
func (h *Hub) Notify(ev engine.Event) {
	h.deliver(string(ev.Kind), ev, ev.RunID)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver encodes the event once and queues it for matching clients. An
// empty runID means the event is not tied to a run and ignores client run
// filters.
func (h *Hub) deliver(channel string, payload any, runID string) {
	data, err := encodeMessage(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if !c.wants(channel, runID) {
			continue
		}
		c.trySend(data)
		sent++
	}
	if sent > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", sent)
	}
}

// encodeMessage stamps msg with the current time and marshals it.
func encodeMessage(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

// subscribeBridgeHealth forwards bridge heartbeats from MQTT to clients
// on ChannelBridgeHealth, tagging each with the bridge's protocol. It is
// a no-op without a broker.
func (s *Server) subscribeBridgeHealth() error {
	if s.mqtt == nil {
		return nil
	}
	topic := mqtt.Topics{}.AllBridgeHealth()
	s.logger.Info("relaying bridge health to websocket clients", "topic", topic)
	return s.mqtt.Subscribe(topic, 1, func(t string, payload []byte) error {
		var status map[string]any
		if err := json.Unmarshal(payload, &status); err != nil {
			s.logger.Warn("dropping malformed bridge health message", "topic", t, "error", err)
			return nil
		}
		status["protocol"] = mqtt.LastSegment(t)
		s.hub.Broadcast(ChannelBridgeHealth, status)
		return nil
	})
}
