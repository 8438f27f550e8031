// Package mqtt provides MQTT client connectivity for Gray Macro.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The macro core never touches the screen or input devices itself. Input
// injection, image location and screen capture are served by bridge
// processes on the target machine, reached through the broker:
//
//	Runner → bridge.Client → MQTT Broker → input / vision bridge
//
// Requests go to graymacro/request/{protocol}/{id}; the bridge answers on
// graymacro/response/{protocol}/{id}. See Topics.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) when the broker is not on loopback
//   - Anyone who can publish to the request topics can drive the host's
//     keyboard and mouse; restrict them with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeResponses("input"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleResponse(mqtt.LastSegment(topic), payload)
//	    })
package mqtt
