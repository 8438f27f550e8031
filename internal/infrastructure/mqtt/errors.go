package mqtt

import "errors"

// Sentinel errors. Wrapped errors keep these in the chain for errors.Is.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
	ErrInvalidQoS        = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic      = errors.New("mqtt: empty topic")

	// ErrTimeout means the broker did not acknowledge in time. The
	// operation may still complete later.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
