package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-macro-core/internal/infrastructure/config"
)

// Client is the core's broker connection. Bridge request clients and the
// run event publisher share one Client.
//
// Subscriptions are remembered and restored after every reconnect, so a
// bridge client that subscribed once keeps receiving responses across
// broker restarts. All methods are safe for concurrent use.
type Client struct {
	client    pahomqtt.Client
	cfg       config.MQTTConfig
	connected atomic.Bool

	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives connection and handler diagnostics.
// logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one received message. It runs on a paho
// goroutine and should return quickly. A returned error is logged; it
// does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker, registers the offline will and publishes a
// retained online notice on graymacro/system/status. It fails if the
// first connection does not complete within the connect timeout; later
// drops are retried automatically.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, subs: make(map[string]subscription)}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.getLogger(); l != nil {
			l.Info("MQTT reconnecting", "broker", cfg.Broker.Host, "port", cfg.Broker.Port)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The on-connect handler runs asynchronously; mark the client usable
	// now so callers can subscribe straight away.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.client.Publish(Topics{}.SystemStatus(), c.QoS(), true, statusPayload(c.cfg.Broker.ClientID, statusOnline, ""))

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) restoreSubscriptions() {
	c.mu.RLock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	c.mu.RUnlock()

	for topic, sub := range subs {
		token := c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
		go func() {
			if err := await(token, operationTimeout); err != nil {
				if l := c.getLogger(); l != nil {
					l.Warn("MQTT resubscribe failed", "topic", topic, "error", err)
				}
			}
		}()
	}
}

// Close publishes a retained graceful-offline notice and disconnects.
// It is safe to call on a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), c.QoS(), true,
			statusPayload(c.cfg.Broker.ClientID, statusOffline, "graceful_shutdown"))
		token.WaitTimeout(operationTimeout)
	}
	c.client.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback run after the first connect and every
// reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the diagnostics logger. Without one, handler errors and
// panics are dropped silently.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts handler to paho, recovering panics so one bad
// message cannot take down the router goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.getLogger(); l != nil {
					l.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.getLogger(); l != nil {
				l.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// await waits for token, returning ErrTimeout if it does not complete.
func await(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	return token.Error()
}
