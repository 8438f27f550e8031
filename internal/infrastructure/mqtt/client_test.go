package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/gray-macro-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker tests (broker_test.go, build tag integration) expect a broker at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graymacro-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"BridgeRequest", topics.BridgeRequest("input", "req-1"), "graymacro/request/input/req-1"},
		{"BridgeResponse", topics.BridgeResponse("vision", "req-2"), "graymacro/response/vision/req-2"},
		{"BridgeHealth", topics.BridgeHealth("input"), "graymacro/health/input"},
		{"CoreRunEvent", topics.CoreRunEvent("run-9"), "graymacro/core/run/run-9/event"},
		{"CoreMacroRun", topics.CoreMacroRun("m-1"), "graymacro/core/macro/m-1/run"},
		{"SystemStatus", topics.SystemStatus(), "graymacro/system/status"},
		{"BridgeResponses", topics.BridgeResponses("input"), "graymacro/response/input/+"},
		{"AllBridgeHealth", topics.AllBridgeHealth(), "graymacro/health/+"},
		{"AllRunEvents", topics.AllRunEvents(), "graymacro/core/run/+/event"},
		{"AllTopics", topics.AllTopics(), "graymacro/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestLastSegment(t *testing.T) {
	tests := map[string]string{
		"graymacro/response/input/req-1": "req-1",
		"graymacro/response/input/":      "",
		"no-slashes":                     "no-slashes",
	}
	for topic, want := range tests {
		if got := LastSegment(topic); got != want {
			t.Errorf("LastSegment(%q) = %q, want %q", topic, got, want)
		}
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "macro"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "graymacro-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "macro" || opts.Password != "secret" {
		t.Errorf("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect with a clean session")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" || opts.TLSConfig == nil {
		t.Errorf("TLS broker = %v, TLSConfig %v", opts.Servers[0], opts.TLSConfig)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "graymacro-test")

	if !opts.WillEnabled || opts.WillTopic != (Topics{}).SystemStatus() || !opts.WillRetained {
		t.Errorf("will = enabled %v, topic %q, retained %v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var will map[string]string
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if will["status"] != "offline" || will["client_id"] != "graymacro-test" {
		t.Errorf("will payload = %v", will)
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		status, reason string
	}{
		{statusOnline, ""},
		{statusOffline, "graceful_shutdown"},
	}
	for _, tt := range tests {
		var decoded map[string]string
		if err := json.Unmarshal(statusPayload("c-1", tt.status, tt.reason), &decoded); err != nil {
			t.Fatalf("%s payload is not JSON: %v", tt.status, err)
		}
		if decoded["status"] != tt.status || decoded["client_id"] != "c-1" || decoded["timestamp"] == "" {
			t.Errorf("%s payload = %v", tt.status, decoded)
		}
		if _, ok := decoded["reason"]; ok != (tt.reason != "") {
			t.Errorf("%s payload reason = %q", tt.status, decoded["reason"])
		}
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func newDisconnectedClient() *Client {
	return &Client{cfg: testConfig(), subs: make(map[string]subscription)}
}

func TestClient_Disconnected(t *testing.T) {
	c := newDisconnectedClient()

	if c.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := newDisconnectedClient()
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"empty topic", func() error { return c.Publish("", nil, 1, false) }, ErrInvalidTopic},
		{"invalid QoS", func() error { return c.Publish("t", nil, 3, false) }, ErrInvalidQoS},
		{"oversized payload", func() error { return c.Publish("t", make([]byte, maxPayloadSize+1), 1, false) }, ErrPublishFailed},
		{"not connected", func() error { return c.Publish("t", []byte("x"), 1, false) }, ErrNotConnected},
		{"unencodable JSON", func() error { return c.PublishJSON("t", make(chan int)) }, ErrPublishFailed},
		{"subscribe empty topic", func() error { return c.Subscribe("", 1, handler) }, ErrInvalidTopic},
		{"subscribe invalid QoS", func() error { return c.Subscribe("t", 3, handler) }, ErrInvalidQoS},
		{"subscribe nil handler", func() error { return c.Subscribe("t", 1, nil) }, ErrSubscribeFailed},
		{"subscribe not connected", func() error { return c.Subscribe("t", 1, handler) }, ErrNotConnected},
		{"unsubscribe empty topic", func() error { return c.Unsubscribe("") }, ErrInvalidTopic},
		{"unsubscribe not connected", func() error { return c.Unsubscribe("t") }, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if subs := c.Subscriptions(); len(subs) != 0 {
		t.Errorf("failed subscribes were tracked: %v", subs)
	}
}

func TestClient_QoS(t *testing.T) {
	c := newDisconnectedClient()
	c.cfg.QoS = 2
	if c.QoS() != 2 {
		t.Errorf("QoS() = %d, want 2", c.QoS())
	}
}

// recordingLogger captures handler diagnostics.
type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Info(string, ...any)         {}
func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

// fakeMessage satisfies pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestWrapHandler(t *testing.T) {
	c := newDisconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	msg := fakeMessage{topic: "graymacro/response/input/r-1", payload: []byte(`{}`)}

	var got string
	c.wrapHandler(func(topic string, _ []byte) error {
		got = topic
		return nil
	})(nil, msg)
	if got != msg.topic {
		t.Errorf("handler saw topic %q", got)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad response") })(nil, msg)
	if len(logger.warns) != 1 {
		t.Errorf("handler error not logged: %v", logger.warns)
	}

	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, msg)
	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("handler panic not recovered and logged: %v", logger.errors)
	}
}
