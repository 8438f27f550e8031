package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefix is the root of every Gray Macro topic.
	TopicPrefix = "graymacro"

	// TopicPrefixCore carries events published by the macro core.
	TopicPrefixCore = "graymacro/core"

	// TopicPrefixSystem carries process status.
	TopicPrefixSystem = "graymacro/system"
)

// Topics builds MQTT topic strings.
//
// Bridges (input injection, image location, screen capture) sit on the
// far side of the broker. The core sends a request to
// graymacro/request/{protocol}/{request_id} and the bridge answers on
// graymacro/response/{protocol}/{request_id}.
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeRequest returns the topic for a request to a bridge.
//
// Example: graymacro/request/input/5f0c...
func (Topics) BridgeRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, protocol, requestID)
}

// BridgeResponse returns the topic a bridge answers a request on.
//
// Example: graymacro/response/vision/5f0c...
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, protocol, requestID)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graymacro/health/input
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// =============================================================================
// Core Topics
// =============================================================================

// CoreRunEvent returns the topic node lifecycle events of a run are published on.
//
// Example: graymacro/core/run/0b6e.../event
func (Topics) CoreRunEvent(runID string) string {
	return fmt.Sprintf("%s/run/%s/event", TopicPrefixCore, runID)
}

// CoreMacroRun returns the topic run start and finish notices for a macro are published on.
//
// Example: graymacro/core/macro/fill-timesheet/run
func (Topics) CoreMacroRun(macroID string) string {
	return fmt.Sprintf("%s/macro/%s/run", TopicPrefixCore, macroID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic (retained, LWT).
//
// Example: graymacro/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// BridgeResponses returns a pattern matching every response from one bridge.
//
// Pattern: graymacro/response/input/+
func (Topics) BridgeResponses(protocol string) string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, protocol)
}

// AllBridgeHealth returns a pattern matching all bridge health updates.
//
// Pattern: graymacro/health/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefix)
}

// AllRunEvents returns a pattern matching node events of every run.
//
// Pattern: graymacro/core/run/+/event
func (Topics) AllRunEvents() string {
	return fmt.Sprintf("%s/run/+/event", TopicPrefixCore)
}

// AllTopics returns a pattern matching all Gray Macro topics.
//
// Pattern: graymacro/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// LastSegment returns the final path segment of a topic, which is the
// request ID on response topics.
func LastSegment(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
