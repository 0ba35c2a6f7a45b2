package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is an immediately-resolved paho token.
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type publishedMessage struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// fakeClient implements pahomqtt.Client against in-memory state.
type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	published    []publishedMessage
	subscribed   map[string]byte
	unsubscribed []string
	disconnects  int
	opts         *pahomqtt.ClientOptions
}

func newFakeClient(opts *pahomqtt.ClientOptions) *fakeClient {
	return &fakeClient{
		subscribed: make(map[string]byte),
		opts:       opts,
	}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeClient) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return &fakeToken{err: f.connectErr}
	}
	f.connected = true
	return &fakeToken{}
}

func (f *fakeClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{
		topic:   topic,
		qos:     qos,
		retain:  retained,
		payload: payload.([]byte),
	})
	return &fakeToken{}
}

func (f *fakeClient) Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[topic] = qos
	return &fakeToken{}
}

func (f *fakeClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for topic, qos := range filters {
		f.subscribed[topic] = qos
	}
	return &fakeToken{}
}

func (f *fakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return &fakeToken{}
}

func (f *fakeClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver pushes an inbound message through the connection's single
// router handler, as the transport would.
func (f *fakeClient) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.opts.DefaultPublishHandler
	f.mu.Unlock()
	handler(f, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type sinkCall struct {
	deviceID string
	topic    string
	payload  string
}

// recordingSink collects forwarded messages.
type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) Ingest(_ context.Context, deviceID, topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{deviceID: deviceID, topic: topic, payload: string(payload)})
	return nil
}

func (s *recordingSink) all() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

// testRegistry wires a registry whose dialer hands out fake clients and
// records each one for inspection.
func testRegistry(sink MessageSink) (*Registry, *[]*fakeClient) {
	clients := &[]*fakeClient{}
	reg := NewRegistry(Config{
		ConnectTimeout: time.Second,
		RetryInterval:  time.Second,
		Sink:           sink,
		Dial: func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
			fc := newFakeClient(opts)
			*clients = append(*clients, fc)
			return fc
		},
	})
	return reg, clients
}

func TestRegistry_Connect(t *testing.T) {
	t.Run("returns same connection for repeated Connect", func(t *testing.T) {
		reg, clients := testRegistry(nil)

		first, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883")
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		second, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883")
		if err != nil {
			t.Fatalf("second Connect() error = %v", err)
		}
		if first != second {
			t.Error("Connect() returned a different connection for the same device")
		}
		if len(*clients) != 1 {
			t.Errorf("dialer invoked %d times, want 1", len(*clients))
		}
	})

	t.Run("keeps original credential snapshot on reuse", func(t *testing.T) {
		reg, _ := testRegistry(nil)

		if _, err := reg.Connect("dev-1", "original", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		conn, err := reg.Connect("dev-1", "rotated", "newpass", "tcp://broker:1883")
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if conn.Username() != "original" {
			t.Errorf("Username() = %q, want %q (reuse ignores new credentials)", conn.Username(), "original")
		}
	})

	t.Run("derives deterministic client identity", func(t *testing.T) {
		reg, clients := testRegistry(nil)

		if _, err := reg.Connect("dev-42", "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		opts := (*clients)[0].opts
		if opts.ClientID != "fleetgate-dev-42" {
			t.Errorf("ClientID = %q, want %q", opts.ClientID, "fleetgate-dev-42")
		}
	})

	t.Run("propagates connect failure", func(t *testing.T) {
		wantErr := errors.New("broker refused")
		reg := NewRegistry(Config{
			ConnectTimeout: time.Second,
			Dial: func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
				fc := newFakeClient(opts)
				fc.connectErr = wantErr
				return fc
			},
		})

		_, err := reg.Connect("dev-bad", "user", "pass", "tcp://broker:1883")
		if !errors.Is(err, ErrConnectionFailed) {
			t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
		}
		if _, ok := reg.GetConnection("dev-bad"); ok {
			t.Error("failed connection was tracked in the registry")
		}
	})
}

func TestRegistry_Disconnect(t *testing.T) {
	t.Run("closes and removes the connection", func(t *testing.T) {
		reg, clients := testRegistry(nil)

		if _, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		reg.Disconnect("dev-1")

		if _, ok := reg.GetConnection("dev-1"); ok {
			t.Error("connection still tracked after Disconnect")
		}
		if (*clients)[0].disconnects != 1 {
			t.Errorf("disconnects = %d, want 1", (*clients)[0].disconnects)
		}
	})

	t.Run("is a no-op for unknown device", func(t *testing.T) {
		reg, _ := testRegistry(nil)
		reg.Disconnect("never-connected")
	})
}

func TestRegistry_DisconnectAll(t *testing.T) {
	reg, _ := testRegistry(nil)

	for _, id := range []string{"dev-1", "dev-2", "dev-3"} {
		if _, err := reg.Connect(id, "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect(%s) error = %v", id, err)
		}
	}

	reg.DisconnectAll()

	if got := reg.Count(); got != 0 {
		t.Errorf("Count() = %d after DisconnectAll, want 0", got)
	}
}

func TestRegistry_Subscribe(t *testing.T) {
	t.Run("requires a connection", func(t *testing.T) {
		reg, _ := testRegistry(nil)
		err := reg.Subscribe("dev-1", "sensors/#", 1)
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
		}
	})

	t.Run("rejects invalid pattern", func(t *testing.T) {
		reg, _ := testRegistry(nil)
		if _, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		err := reg.Subscribe("dev-1", "a/#/b", 1)
		if !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("Subscribe() error = %v, want ErrInvalidPattern", err)
		}
	})

	t.Run("forwards matching messages to the sink", func(t *testing.T) {
		sink := &recordingSink{}
		reg, clients := testRegistry(sink)

		if _, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if err := reg.Subscribe("dev-1", "sensors/+/temp", 1); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}

		fc := (*clients)[0]
		fc.deliver("sensors/boiler/temp", []byte("21.5"))
		fc.deliver("actuators/pump/state", []byte("on"))

		calls := sink.all()
		if len(calls) != 1 {
			t.Fatalf("sink received %d messages, want 1", len(calls))
		}
		if calls[0].deviceID != "dev-1" || calls[0].topic != "sensors/boiler/temp" || calls[0].payload != "21.5" {
			t.Errorf("sink call = %+v", calls[0])
		}
	})

	t.Run("re-subscribing replaces the pattern QoS", func(t *testing.T) {
		reg, _ := testRegistry(nil)
		if _, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if err := reg.Subscribe("dev-1", "sensors/#", 0); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		if err := reg.Subscribe("dev-1", "sensors/#", 2); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}

		conn, _ := reg.GetConnection("dev-1")
		subs := conn.Subscriptions()
		if len(subs) != 1 {
			t.Fatalf("Subscriptions() has %d entries, want 1", len(subs))
		}
		if subs["sensors/#"] != 2 {
			t.Errorf("QoS = %d, want 2", subs["sensors/#"])
		}
	})
}

func TestRegistry_Unsubscribe(t *testing.T) {
	t.Run("is a no-op without a connection", func(t *testing.T) {
		reg, _ := testRegistry(nil)
		if err := reg.Unsubscribe("dev-1", "sensors/#"); err != nil {
			t.Errorf("Unsubscribe() error = %v, want nil", err)
		}
	})

	t.Run("stops routing for the removed pattern", func(t *testing.T) {
		sink := &recordingSink{}
		reg, clients := testRegistry(sink)

		if _, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if err := reg.Subscribe("dev-1", "sensors/#", 0); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		if err := reg.Unsubscribe("dev-1", "sensors/#"); err != nil {
			t.Fatalf("Unsubscribe() error = %v", err)
		}

		(*clients)[0].deliver("sensors/boiler/temp", []byte("21.5"))

		if calls := sink.all(); len(calls) != 0 {
			t.Errorf("sink received %d messages after unsubscribe, want 0", len(calls))
		}
	})
}

func TestRegistry_Publish(t *testing.T) {
	t.Run("requires a connection", func(t *testing.T) {
		reg, _ := testRegistry(nil)
		err := reg.Publish("dev-1", "sensors/temp", []byte("21"), 0, false)
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("Publish() error = %v, want ErrNotConnected", err)
		}
	})

	t.Run("delivers through the device connection", func(t *testing.T) {
		reg, clients := testRegistry(nil)
		if _, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}

		if err := reg.Publish("dev-1", "commands/reboot", []byte("now"), 1, true); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}

		fc := (*clients)[0]
		if len(fc.published) != 1 {
			t.Fatalf("published %d messages, want 1", len(fc.published))
		}
		msg := fc.published[0]
		if msg.topic != "commands/reboot" || msg.qos != 1 || !msg.retain || string(msg.payload) != "now" {
			t.Errorf("published message = %+v", msg)
		}
	})

	t.Run("rejects out-of-range QoS", func(t *testing.T) {
		reg, _ := testRegistry(nil)
		if _, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883"); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		err := reg.Publish("dev-1", "commands/reboot", []byte("now"), 3, false)
		if !errors.Is(err, ErrInvalidQoS) {
			t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
		}
	})
}

func TestConnection_RestoreSubscriptions(t *testing.T) {
	reg, clients := testRegistry(nil)

	if _, err := reg.Connect("dev-1", "user", "pass", "tcp://broker:1883"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := reg.Subscribe("dev-1", "sensors/#", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fc := (*clients)[0]
	fc.mu.Lock()
	fc.subscribed = make(map[string]byte) // simulate broker-side session loss
	onConnect := fc.opts.OnConnect
	fc.mu.Unlock()

	// Reconnect callback re-issues every tracked pattern.
	onConnect(fc)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.subscribed["sensors/#"] != 1 {
		t.Errorf("subscription not restored after reconnect: %v", fc.subscribed)
	}
}
