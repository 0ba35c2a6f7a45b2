package bridge

import "errors"

// Domain-specific errors for broker connection operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a device
	// with no tracked connection.
	ErrNotConnected = errors.New("bridge: device not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("bridge: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("bridge: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("bridge: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("bridge: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("bridge: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic or pattern is provided.
	ErrInvalidTopic = errors.New("bridge: topic cannot be empty")

	// ErrInvalidPattern is returned when a subscription pattern fails
	// wildcard validation.
	ErrInvalidPattern = errors.New("bridge: invalid subscription pattern")
)
