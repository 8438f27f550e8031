package bridge

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/nerrad567/gray-macro-core/internal/infrastructure/mqtt"
)

// responder answers a decoded request. Returning nil sends no response.
type responder func(req Request) *Response

// mockTransport is an in-process broker with one fake bridge attached.
type mockTransport struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	published    []published
	respond      responder
	publishErr   error
	subscribeErr error
}

type published struct {
	topic   string
	payload []byte
}

var errBrokerDown = errors.New("broker down")

func newMockTransport(respond responder) *mockTransport {
	return &mockTransport{handlers: make(map[string]mqtt.MessageHandler), respond: respond}
}

func (m *mockTransport) QoS() byte { return 1 }

func (m *mockTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	return nil
}

func (m *mockTransport) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.publishErr != nil {
		m.mu.Unlock()
		return m.publishErr
	}
	m.published = append(m.published, published{topic: topic, payload: payload})
	respond := m.respond
	m.mu.Unlock()

	if respond == nil || !strings.Contains(topic, "/request/") {
		return nil
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	protocol := strings.Split(topic, "/")[2]
	go func() {
		resp := respond(req)
		if resp == nil {
			return
		}
		body, _ := json.Marshal(resp)
		m.deliver(mqtt.Topics{}.BridgeResponse(protocol, req.ID), body)
	}()
	return nil
}

// deliver routes a message to the handler subscribed for the topic's wildcard.
func (m *mockTransport) deliver(topic string, payload []byte) {
	wildcard := topic[:strings.LastIndex(topic, "/")] + "/+"
	m.mu.Lock()
	h := m.handlers[wildcard]
	m.mu.Unlock()
	if h != nil {
		_ = h(topic, payload)
	}
}

func (m *mockTransport) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.published))
	for i, p := range m.published {
		out[i] = p.topic
	}
	return out
}

func (m *mockTransport) payloads() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.published))
	for i, p := range m.published {
		out[i] = p.payload
	}
	return out
}

// ok builds a successful response carrying result.
func ok(req Request, result any) *Response {
	raw, _ := json.Marshal(result)
	return &Response{ID: req.ID, OK: true, Result: raw}
}
