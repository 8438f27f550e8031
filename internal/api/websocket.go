package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-macro-core/internal/infrastructure/config"
)

// Message types exchanged with WebSocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelBridgeHealth carries bridge heartbeats relayed from MQTT.
const ChannelBridgeHealth = "bridge.health"

// wsSendBufferSize is how many messages may queue for one client before
// further events to it are dropped.
const wsSendBufferSize = 256

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
//
// A channel ending in ".*" matches every channel with that prefix, so
// "node.*" follows all node events. RunID, when set on subscribe,
// restricts node events to that run; an unsubscribe with RunID clears the
// filter.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	RunID    string   `json:"run_id,omitempty"`
}

// channelSet holds a client's subscriptions.
type channelSet map[string]struct{}

// matches reports whether channel is in the set directly or through a
// "prefix.*" entry.
func (s channelSet) matches(channel string) bool {
	if _, ok := s[channel]; ok {
		return true
	}
	i := strings.LastIndexByte(channel, '.')
	if i <= 0 {
		return false
	}
	_, ok := s[channel[:i]+".*"]
	return ok
}

// WSClient is one WebSocket connection registered with a Hub.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string

	mu            sync.RWMutex
	subscriptions channelSet
	runFilter     string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// pumpTiming is the keepalive schedule derived from WebSocketConfig.
type pumpTiming struct {
	ping     time.Duration
	pongWait time.Duration
	maxSize  int64
}

func newPumpTiming(cfg config.WebSocketConfig) pumpTiming {
	return pumpTiming{
		ping:     time.Duration(cfg.PingInterval) * time.Second,
		pongWait: time.Duration(cfg.PongTimeout) * time.Second,
		maxSize:  int64(cfg.MaxMessageSize),
	}
}

// readDeadline is how long the read side waits for any frame, pongs
// included, before dropping the connection.
func (p pumpTiming) readDeadline() time.Time {
	return time.Now().Add(p.ping + p.pongWait)
}

// handleWebSocket upgrades GET /ws. With JWT enabled the caller must
// present a one-shot ticket from POST /auth/ws-ticket, since browsers
// cannot set headers on the upgrade request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var subject string
	if s.secCfg.JWT.Enabled {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		entry, ok := s.tickets.validate(ticket)
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
		subject = entry.subject
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(channelSet),
		subject:       subject,
	}
	s.hub.Register(c)

	timing := newPumpTiming(s.wsCfg)
	go c.writePump(timing)
	go c.readPump(timing)
}

// readPump handles inbound frames until the connection fails, then
// unregisters the client.
func (c *WSClient) readPump(t pumpTiming) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(t.maxSize)
	_ = c.conn.SetReadDeadline(t.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "subject", c.subject, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(t.readDeadline())
		c.handleMessage(data)
	}
}

// writePump drains the send queue and pings on schedule. It exits when
// the hub closes the queue or a write fails.
func (c *WSClient) writePump(t pumpTiming) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, open := <-c.send:
			if !open {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSTypeError, "", errorBody("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.updateSubscriptions(msg)
	case WSTypePing:
		c.reply(WSTypePong, msg.ID, nil)
	default:
		c.reply(WSTypeError, msg.ID, errorBody("unknown message type: "+msg.Type))
	}
}

func (c *WSClient) updateSubscriptions(msg WSMessage) {
	sub, ok := decodeSubscription(msg.Payload)
	if !ok {
		c.reply(WSTypeError, msg.ID, errorBody("invalid subscription payload"))
		return
	}
	adding := msg.Type == WSTypeSubscribe

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if adding {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	switch {
	case adding && sub.RunID != "":
		c.runFilter = sub.RunID
	case !adding && sub.RunID != "" && sub.RunID == c.runFilter:
		c.runFilter = ""
	}
	c.mu.Unlock()

	body := map[string]any{"unsubscribed": sub.Channels}
	if adding {
		body = map[string]any{"subscribed": sub.Channels}
		if sub.RunID != "" {
			body["run_id"] = sub.RunID
		}
		c.hub.logger.Debug("websocket client subscribed", "subject", c.subject, "channels", sub.Channels, "run_id", sub.RunID)
	}
	c.reply(WSTypeResponse, msg.ID, body)
}

// decodeSubscription re-decodes the generic payload into a
// WSSubscribePayload. At least one channel is required.
func decodeSubscription(payload any) (WSSubscribePayload, bool) {
	var sub WSSubscribePayload
	raw, err := json.Marshal(payload)
	if err != nil {
		return sub, false
	}
	if err := json.Unmarshal(raw, &sub); err != nil || len(sub.Channels) == 0 {
		return sub, false
	}
	return sub, true
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions.matches(channel)
}

// wants reports whether an event on channel from runID should reach the
// client.
func (c *WSClient) wants(channel, runID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.subscriptions.matches(channel) {
		return false
	}
	return runID == "" || c.runFilter == "" || c.runFilter == runID
}

// trySend queues data without blocking. A full queue drops the message;
// a queue already closed by Unregister is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() { _ = recover() }()
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) reply(msgType, id string, payload any) {
	data, err := encodeMessage(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err != nil {
		return
	}
	c.trySend(data)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}
