package mqtt

import (
	"fmt"
	"slices"
	"sort"
)

// Subscribe registers handler for topic, which may contain + and #
// wildcards:
//
//	client.Subscribe(mqtt.Topics{}.BridgeResponses("input"), 1, onResponse)
//
// The subscription is tracked and restored after reconnects. Each
// message is handled on a paho goroutine.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), operationTimeout); err != nil {
		c.mu.Lock()
		delete(c.subs, topic)
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe drops the subscription for the exact topic pattern passed
// to Subscribe. Messages already in flight may still be delivered.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	if err := await(c.client.Unsubscribe(topic), operationTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// Subscriptions returns the tracked topic patterns, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	topics := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	c.mu.RUnlock()
	sort.Strings(topics)
	return topics
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// HasSubscription reports whether exactly topic is subscribed. Patterns
// are not matched against each other.
func (c *Client) HasSubscription(topic string) bool {
	return slices.Contains(c.Subscriptions(), topic)
}
