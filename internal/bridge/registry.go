package bridge

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Logger interface for connection-state logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Dialer constructs an MQTT client from prepared options. The default
// dialer creates a real paho client; tests inject fakes here.
type Dialer func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Config carries the registry's connection policy.
type Config struct {
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration

	// RetryInterval caps the automatic-reconnect backoff. Reconnection
	// itself is unlimited; only the interval between attempts is bounded.
	RetryInterval time.Duration

	// Sink receives inbound messages that match a subscription pattern.
	Sink MessageSink

	// Logger receives connection-state transitions. Optional.
	Logger Logger

	// Dial overrides client construction. Optional; defaults to paho.
	Dial Dialer
}

// Registry owns one broker connection per device identifier.
type Registry struct {
	connectTimeout time.Duration
	retryInterval  time.Duration
	sink           MessageSink
	logger         Logger
	dial           Dialer

	// mu guards the maps only. Connection establishment happens under
	// the per-device lock so a slow connect for one device never blocks
	// operations on another.
	mu    sync.Mutex
	conns map[string]*Connection
	locks map[string]*sync.Mutex
}

// NewRegistry creates an empty connection registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Dial == nil {
		cfg.Dial = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
			return pahomqtt.NewClient(opts)
		}
	}

	return &Registry{
		connectTimeout: cfg.ConnectTimeout,
		retryInterval:  cfg.RetryInterval,
		sink:           cfg.Sink,
		logger:         cfg.Logger,
		dial:           cfg.Dial,
		conns:          make(map[string]*Connection),
		locks:          make(map[string]*sync.Mutex),
	}
}

// Connect returns the device's tracked connection, establishing one if
// absent.
//
// An existing connection is returned as-is even when the passed-in
// credentials differ from its snapshot: credential rotation is an
// explicit Disconnect followed by a fresh Connect, never an implicit
// swap under a live connection.
func (r *Registry) Connect(deviceID, username, password, brokerURL string) (*Connection, error) {
	lock := r.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	if conn, ok := r.lookup(deviceID); ok {
		return conn, nil
	}

	conn := &Connection{
		deviceID:      deviceID,
		username:      username,
		password:      password,
		subscriptions: make(map[string]byte),
		sink:          r.sink,
		logger:        r.logger,
	}

	opts := r.buildClientOptions(deviceID, username, password, brokerURL)
	opts.SetDefaultPublishHandler(conn.routeMessage)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		r.logger.Info("device connected", "device_id", deviceID, "broker", brokerURL)
		conn.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		r.logger.Warn("device connection lost", "device_id", deviceID, "error", err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		r.logger.Info("device reconnecting", "device_id", deviceID)
	})

	conn.client = r.dial(opts)

	token := conn.client.Connect()
	if !token.WaitTimeout(r.connectTimeout) {
		conn.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v connecting device %s", ErrConnectionFailed, r.connectTimeout, deviceID)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: device %s: %w", ErrConnectionFailed, deviceID, err)
	}

	r.store(deviceID, conn)
	r.logger.Info("device connection established", "device_id", deviceID)
	return conn, nil
}

// GetConnection returns the tracked connection for a device, if any.
// Non-blocking, no side effects.
func (r *Registry) GetConnection(deviceID string) (*Connection, bool) {
	return r.lookup(deviceID)
}

// Disconnect gracefully closes and removes the device's connection.
// A no-op if the device has no tracked connection.
func (r *Registry) Disconnect(deviceID string) {
	lock := r.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	conn, ok := r.lookup(deviceID)
	if !ok {
		return
	}

	conn.close()
	r.remove(deviceID)
	r.logger.Info("device disconnected", "device_id", deviceID)
}

// DisconnectAll sequentially disconnects every tracked device.
// Used only at process shutdown.
func (r *Registry) DisconnectAll() {
	for _, deviceID := range r.deviceIDs() {
		r.Disconnect(deviceID)
	}
}

// Subscribe issues a broker subscribe for pattern on the device's
// connection. The connection's single inbound handler routes matching
// messages to the telemetry sink; re-subscribing replaces the pattern's
// QoS rather than stacking handlers.
func (r *Registry) Subscribe(deviceID, pattern string, qos byte) error {
	conn, ok := r.lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: device %s", ErrNotConnected, deviceID)
	}
	return conn.subscribe(pattern, qos)
}

// Unsubscribe removes a pattern from the device's connection.
// A no-op if the device has no active connection.
func (r *Registry) Unsubscribe(deviceID, pattern string) error {
	conn, ok := r.lookup(deviceID)
	if !ok {
		return nil
	}
	return conn.unsubscribe(pattern)
}

// Publish sends a message on the device's connection.
func (r *Registry) Publish(deviceID, topic string, payload []byte, qos byte, retain bool) error {
	conn, ok := r.lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: device %s", ErrNotConnected, deviceID)
	}
	return conn.publish(topic, payload, qos, retain)
}

// Count returns the number of tracked connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// buildClientOptions creates paho options for one device connection.
//
// Identity is deterministic: the client ID is derived from the device
// identifier so a reconnecting device displaces its own stale session
// on the broker rather than leaking a second one.
func (r *Registry) buildClientOptions(deviceID, username, password, brokerURL string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID("fleetgate-" + deviceID)

	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetCleanSession(true)
	opts.SetConnectTimeout(r.connectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Initial connect failures propagate to the caller; only a
	// connection that was once live reconnects automatically, forever,
	// at a bounded interval.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(r.retryInterval)

	return opts
}

func (r *Registry) deviceLock(deviceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[deviceID] = lock
	}
	return lock
}

func (r *Registry) lookup(deviceID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[deviceID]
	return conn, ok
}

func (r *Registry) store(deviceID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[deviceID] = conn
}

func (r *Registry) remove(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, deviceID)
}

func (r *Registry) deviceIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}
