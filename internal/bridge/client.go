package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-macro-core/internal/infrastructure/mqtt"
)

// DefaultTimeout bounds a request when the client is created without one.
const DefaultTimeout = 10 * time.Second

// Transport is the subset of the MQTT client the bridge client needs.
// *mqtt.Client satisfies it.
type Transport interface {
	PublishJSON(topic string, v any) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Logger is the logging interface used by the bridge package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Request is the message published to a bridge.
type Request struct {
	ID     string    `json:"id"`
	Op     string    `json:"op"`
	Params any       `json:"params,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Response is a bridge's answer to a Request.
type Response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Client exchanges requests and responses with one bridge protocol.
//
// Thread Safety: Request may be called from many goroutines; responses
// are routed by request ID.
type Client struct {
	transport Transport
	protocol  string
	timeout   time.Duration
	logger    Logger

	mu      sync.Mutex
	started bool
	pending map[string]chan Response
}

// NewClient creates a client for the named bridge protocol.
//
// Parameters:
//   - transport: MQTT connection (usually *mqtt.Client)
//   - protocol: Bridge name used in topics (e.g. "input", "vision")
//   - timeout: Per-request limit; <= 0 uses DefaultTimeout
func NewClient(transport Transport, protocol string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		transport: transport,
		protocol:  protocol,
		timeout:   timeout,
		logger:    noopLogger{},
		pending:   make(map[string]chan Response),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Protocol returns the bridge protocol name.
func (c *Client) Protocol() string {
	return c.protocol
}

// Start subscribes to the protocol's response topics.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	topic := mqtt.Topics{}.BridgeResponses(c.protocol)
	if err := c.transport.Subscribe(topic, c.transport.QoS(), c.handleResponse); err != nil {
		return fmt.Errorf("subscribing to %s responses: %w", c.protocol, err)
	}
	c.started = true
	return nil
}

// Stop unsubscribes and fails every waiting request with ErrNotStarted.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	pending := c.pending
	c.pending = make(map[string]chan Response)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	if err := c.transport.Unsubscribe(mqtt.Topics{}.BridgeResponses(c.protocol)); err != nil {
		return fmt.Errorf("unsubscribing from %s responses: %w", c.protocol, err)
	}
	return nil
}

// Request publishes op to the bridge and waits for its answer.
//
// Parameters:
//   - ctx: Cancels the wait (the bridge may still act on the request)
//   - op: Operation name understood by the bridge
//   - params: JSON-encodable operation parameters
//   - result: Decoded from the response's result field when non-nil
//
// Returns:
//   - error: nil on success, or:
//   - ErrNotStarted if Start has not been called
//   - ErrTimeout if the bridge did not answer in time
//   - ErrRejected if the bridge answered with ok=false
//   - ErrBadResponse if result could not be decoded
//   - ctx.Err() if the context ended first
func (c *Client) Request(ctx context.Context, op string, params, result any) error {
	id := uuid.New().String()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	req := Request{ID: id, Op: op, Params: params, SentAt: time.Now().UTC()}
	if err := c.transport.PublishJSON(mqtt.Topics{}.BridgeRequest(c.protocol, id), req); err != nil {
		return fmt.Errorf("sending %s request: %w", op, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: %s %s after %v", ErrTimeout, c.protocol, op, c.timeout)
	case resp, ok := <-ch:
		if !ok {
			return ErrNotStarted
		}
		if !resp.OK {
			return fmt.Errorf("%w: %s %s: %s", ErrRejected, c.protocol, op, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%w: %s result: %w", ErrBadResponse, op, err)
			}
		}
		return nil
	}
}

// PendingCount returns the number of requests awaiting an answer.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// handleResponse routes a response to its waiting request.
func (c *Client) handleResponse(topic string, payload []byte) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if resp.ID == "" {
		resp.ID = mqtt.LastSegment(topic)
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping response for unknown request", "protocol", c.protocol, "request_id", resp.ID)
		return nil
	}
	ch <- resp
	return nil
}
