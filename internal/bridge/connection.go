package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fleetgate/fleetgate-core/internal/topics"
)

// Connection constants.
const (
	// defaultOpTimeout is the maximum time to wait for broker
	// acknowledgment of publish/subscribe/unsubscribe operations.
	defaultOpTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending
	// operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for device connections.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// maxPayloadSize caps outbound message payloads (1MB). This prevents
	// resource exhaustion and aligns with typical broker limits.
	maxPayloadSize = 1 << 20
)

// MessageSink receives inbound messages that matched one of a device's
// subscription patterns. Implemented by the telemetry ingestor.
//
// Errors returned by the sink are logged and never propagate back into
// the broker delivery path.
type MessageSink interface {
	Ingest(ctx context.Context, deviceID, topic string, payload []byte) error
}

// Connection is one device's live broker connection.
//
// The registry exclusively owns Connection values; callers interact
// through the Registry API and never hold the underlying client.
type Connection struct {
	deviceID string

	// Credential snapshot taken at connect time. A later credential
	// change does not touch a live connection; callers disconnect and
	// let the next operation reconnect with fresh credentials.
	username string
	password string

	client pahomqtt.Client

	// subscriptions tracks active patterns for inbound routing and for
	// re-subscription after an automatic reconnect.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	sink   MessageSink
	logger Logger
}

// DeviceID returns the identifier of the owning device.
func (c *Connection) DeviceID() string {
	return c.deviceID
}

// Username returns the username snapshot the connection authenticated with.
func (c *Connection) Username() string {
	return c.username
}

// IsConnected reports whether the underlying client is currently connected.
func (c *Connection) IsConnected() bool {
	return c.client.IsConnected()
}

// Subscriptions returns a copy of the active pattern → QoS set.
func (c *Connection) Subscriptions() map[string]byte {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	out := make(map[string]byte, len(c.subscriptions))
	for pattern, qos := range c.subscriptions {
		out[pattern] = qos
	}
	return out
}

// publish sends a message on the device's connection.
func (c *Connection) publish(topic string, payload []byte, qos byte, retain bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	token := c.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// subscribe issues a broker subscribe for pattern and records it in the
// routing set. The subscription carries no per-pattern callback: every
// inbound message lands in the connection's single router handler.
func (c *Connection) subscribe(pattern string, qos byte) error {
	if pattern == "" {
		return ErrInvalidTopic
	}
	if !topics.ValidatePattern(pattern) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	c.subMu.Lock()
	c.subscriptions[pattern] = qos
	c.subMu.Unlock()

	token := c.client.Subscribe(pattern, qos, nil)
	if !token.WaitTimeout(defaultOpTimeout) {
		c.dropSubscription(pattern)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		c.dropSubscription(pattern)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// unsubscribe removes a pattern from the routing set and the broker.
func (c *Connection) unsubscribe(pattern string) error {
	if pattern == "" {
		return ErrInvalidTopic
	}

	c.dropSubscription(pattern)

	token := c.client.Unsubscribe(pattern)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

func (c *Connection) dropSubscription(pattern string) {
	c.subMu.Lock()
	delete(c.subscriptions, pattern)
	c.subMu.Unlock()
}

// close gracefully disconnects the underlying client.
func (c *Connection) close() {
	c.client.Disconnect(defaultDisconnectQuiesce)
}

// routeMessage is the connection's single inbound handler. It tests the
// message topic against every active subscription pattern and forwards
// at most one copy to the sink. A sink failure is logged and swallowed;
// a malformed payload must not destabilize the connection.
func (c *Connection) routeMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("inbound handler panic recovered",
				"device_id", c.deviceID,
				"topic", msg.Topic(),
				"panic", r,
			)
		}
	}()

	if !c.matchesAny(msg.Topic()) {
		return
	}

	if c.sink == nil {
		return
	}
	if err := c.sink.Ingest(context.Background(), c.deviceID, msg.Topic(), msg.Payload()); err != nil {
		c.logger.Warn("telemetry ingest failed",
			"device_id", c.deviceID,
			"topic", msg.Topic(),
			"error", err,
		)
	}
}

func (c *Connection) matchesAny(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for pattern := range c.subscriptions {
		if topics.Matches(pattern, topic) {
			return true
		}
	}
	return false
}

// restoreSubscriptions re-issues every tracked pattern after an
// automatic reconnect. Errors are logged; the reconnect loop will get
// another chance on the next state transition.
func (c *Connection) restoreSubscriptions() {
	c.subMu.RLock()
	patterns := make(map[string]byte, len(c.subscriptions))
	for pattern, qos := range c.subscriptions {
		patterns[pattern] = qos
	}
	c.subMu.RUnlock()

	for pattern, qos := range patterns {
		token := c.client.Subscribe(pattern, qos, nil)
		if !token.WaitTimeout(defaultOpTimeout) || token.Error() != nil {
			c.logger.Warn("failed to restore subscription",
				"device_id", c.deviceID,
				"pattern", pattern,
				"error", token.Error(),
			)
		}
	}
}
