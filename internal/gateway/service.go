package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate-core/internal/bridge"
	"github.com/fleetgate/fleetgate-core/internal/catalog"
	"github.com/fleetgate/fleetgate-core/internal/device"
	"github.com/fleetgate/fleetgate-core/internal/scheduler"
	"github.com/fleetgate/fleetgate-core/internal/topics"
)

// Logger interface for facade diagnostics.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

const maxQoS = 2

// Deps carries the collaborators a Service composes.
type Deps struct {
	Devices       device.Repository
	Topics        catalog.Repository
	Subscriptions SubscriptionRepository
	Publications  PublicationRepository
	Registry      *bridge.Registry
	Engine        *scheduler.Engine

	// BrokerURL is the shared broker address every device connects to.
	BrokerURL string

	Logger Logger
}

// Service is the gateway facade.
type Service struct {
	devices   device.Repository
	topics    catalog.Repository
	subs      SubscriptionRepository
	pubs      PublicationRepository
	registry  *bridge.Registry
	engine    *scheduler.Engine
	brokerURL string
	logger    Logger
}

// NewService creates the facade from its collaborators.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		devices:   deps.Devices,
		topics:    deps.Topics,
		subs:      deps.Subscriptions,
		pubs:      deps.Publications,
		registry:  deps.Registry,
		engine:    deps.Engine,
		brokerURL: deps.BrokerURL,
		logger:    logger,
	}
}

// ensureConnection returns the device's live connection, establishing
// one with the device's stored credentials if absent.
func (s *Service) ensureConnection(ctx context.Context, deviceID string) (*bridge.Connection, error) {
	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, translate(err)
	}
	if !dev.Enabled {
		return nil, fmt.Errorf("%w: device %s is disabled", ErrPermissionDenied, deviceID)
	}

	conn, err := s.registry.Connect(dev.ID, dev.Username, dev.Password, s.brokerURL)
	if err != nil {
		return nil, translate(err)
	}
	return conn, nil
}

// Subscribe persists a subscription for the device and installs it on
// the device's live connection.
//
// The pattern's topic record gates the operation: a topic whose
// allow_subscribe flag is off fails with ErrPermissionDenied before
// any store or broker mutation that matters to the caller.
func (s *Service) Subscribe(ctx context.Context, deviceID, pattern string, qos byte) (*Subscription, error) {
	if !topics.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: invalid pattern %q", ErrInvalidInput, pattern)
	}
	if qos > maxQoS {
		return nil, fmt.Errorf("%w: QoS must be 0, 1 or 2", ErrInvalidInput)
	}

	topic, err := s.topics.FindOrCreate(ctx, pattern)
	if err != nil {
		return nil, translate(err)
	}
	if !topic.AllowSubscribe {
		return nil, fmt.Errorf("%w: topic %q does not allow subscription", ErrPermissionDenied, pattern)
	}

	sub := &Subscription{
		DeviceID: deviceID,
		Pattern:  pattern,
		QoS:      qos,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, translate(err)
	}

	if _, err := s.ensureConnection(ctx, deviceID); err != nil {
		s.rollbackSubscription(ctx, deviceID, pattern)
		return nil, err
	}
	if err := s.registry.Subscribe(deviceID, pattern, qos); err != nil {
		s.rollbackSubscription(ctx, deviceID, pattern)
		return nil, translate(err)
	}

	s.logger.Info("subscription installed", "device_id", deviceID, "pattern", pattern, "qos", qos)
	return sub, nil
}

func (s *Service) rollbackSubscription(ctx context.Context, deviceID, pattern string) {
	if _, err := s.subs.Delete(ctx, deviceID, pattern); err != nil {
		s.logger.Error("failed to roll back subscription record",
			"device_id", deviceID,
			"pattern", pattern,
			"error", err,
		)
	}
}

// Unsubscribe removes a persisted subscription and, when the device has
// a live connection, removes it there too. A device with no connection
// is not an error.
func (s *Service) Unsubscribe(ctx context.Context, deviceID, pattern string) error {
	if _, err := s.subs.Delete(ctx, deviceID, pattern); err != nil {
		return translate(err)
	}
	if err := s.registry.Unsubscribe(deviceID, pattern); err != nil {
		return translate(err)
	}
	return nil
}

// ListSubscriptions retrieves one device's persisted subscriptions.
func (s *Service) ListSubscriptions(ctx context.Context, deviceID string) ([]Subscription, error) {
	subs, err := s.subs.ListByDevice(ctx, deviceID)
	return subs, translate(err)
}

// PublishNow delivers a message immediately on the device's connection
// and records it in the publication history.
//
// The topic must be literal (no wildcards) and its record must be
// public.
func (s *Service) PublishNow(ctx context.Context, deviceID, topic string, payload []byte, qos byte, retain bool) (*Publication, error) {
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if topics.HasWildcards(topic) {
		return nil, fmt.Errorf("%w: cannot publish to wildcard topic %q", ErrInvalidInput, topic)
	}
	if qos > maxQoS {
		return nil, fmt.Errorf("%w: QoS must be 0, 1 or 2", ErrInvalidInput)
	}

	record, err := s.topics.FindOrCreate(ctx, topic)
	if err != nil {
		return nil, translate(err)
	}
	if !record.IsPublic {
		return nil, fmt.Errorf("%w: topic %q does not allow publication", ErrPermissionDenied, topic)
	}

	if err := s.Publish(ctx, deviceID, topic, payload, qos, retain); err != nil {
		return nil, err
	}

	pub := &Publication{
		DeviceID:    deviceID,
		Topic:       topic,
		Payload:     payload,
		QoS:         qos,
		Retain:      retain,
		PublishedAt: time.Now().UTC(),
	}
	if err := s.pubs.Create(ctx, pub); err != nil {
		// The message is already on the wire; a history miss is logged,
		// not surfaced as a delivery failure.
		s.logger.Warn("failed to record publication history",
			"device_id", deviceID,
			"topic", topic,
			"error", err,
		)
	}
	return pub, nil
}

// Publish is the shared delivery path: immediate publishes and due
// scheduled publications both travel through here. Implements
// scheduler.Publisher.
func (s *Service) Publish(ctx context.Context, deviceID, topic string, payload []byte, qos byte, retain bool) error {
	if _, err := s.ensureConnection(ctx, deviceID); err != nil {
		return err
	}
	if err := s.registry.Publish(deviceID, topic, payload, qos, retain); err != nil {
		return translate(err)
	}
	return nil
}

// ListPublications retrieves one device's publication history.
func (s *Service) ListPublications(ctx context.Context, deviceID string) ([]Publication, error) {
	pubs, err := s.pubs.ListByDevice(ctx, deviceID)
	return pubs, translate(err)
}

// SchedulePublication validates the device and topic and creates a
// PENDING scheduled publication. A due-check fires immediately so a
// near-term schedule is not delayed by the polling interval.
func (s *Service) SchedulePublication(ctx context.Context, deviceID, topic string, payload []byte, qos byte, retain bool, scheduledAt time.Time) (*scheduler.ScheduledPublication, error) {
	if _, err := s.devices.GetByID(ctx, deviceID); err != nil {
		return nil, translate(err)
	}
	if topic != "" && !topics.HasWildcards(topic) {
		record, err := s.topics.FindOrCreate(ctx, topic)
		if err != nil {
			return nil, translate(err)
		}
		if !record.IsPublic {
			return nil, fmt.Errorf("%w: topic %q does not allow publication", ErrPermissionDenied, topic)
		}
	} else if topics.HasWildcards(topic) {
		return nil, fmt.Errorf("%w: cannot publish to wildcard topic %q", ErrInvalidInput, topic)
	}

	sp, err := s.engine.Schedule(ctx, &scheduler.ScheduledPublication{
		DeviceID:    deviceID,
		Topic:       topic,
		Payload:     payload,
		QoS:         qos,
		Retain:      retain,
		ScheduledAt: scheduledAt,
	})
	return sp, translate(err)
}

// UpdateScheduledPublication applies partial fields to a PENDING,
// FAILED or CANCELLED record, reviving it to PENDING.
func (s *Service) UpdateScheduledPublication(ctx context.Context, id string, fields scheduler.UpdateFields) (*scheduler.ScheduledPublication, error) {
	if fields.Topic != nil {
		if topics.HasWildcards(*fields.Topic) {
			return nil, fmt.Errorf("%w: cannot publish to wildcard topic %q", ErrInvalidInput, *fields.Topic)
		}
		record, err := s.topics.FindOrCreate(ctx, *fields.Topic)
		if err != nil {
			return nil, translate(err)
		}
		if !record.IsPublic {
			return nil, fmt.Errorf("%w: topic %q does not allow publication", ErrPermissionDenied, *fields.Topic)
		}
	}

	sp, err := s.engine.Update(ctx, id, fields)
	return sp, translate(err)
}

// CancelScheduledPublication marks a record CANCELLED.
func (s *Service) CancelScheduledPublication(ctx context.Context, id string) (*scheduler.ScheduledPublication, error) {
	sp, err := s.engine.Cancel(ctx, id)
	return sp, translate(err)
}

// GetScheduledPublication retrieves one record.
func (s *Service) GetScheduledPublication(ctx context.Context, id string) (*scheduler.ScheduledPublication, error) {
	sp, err := s.engine.Get(ctx, id)
	return sp, translate(err)
}

// ListScheduledPublications retrieves all records.
func (s *Service) ListScheduledPublications(ctx context.Context) ([]scheduler.ScheduledPublication, error) {
	sps, err := s.engine.List(ctx)
	return sps, translate(err)
}

// ListDeviceScheduledPublications retrieves one device's records.
func (s *Service) ListDeviceScheduledPublications(ctx context.Context, deviceID string) ([]scheduler.ScheduledPublication, error) {
	sps, err := s.engine.ListByDevice(ctx, deviceID)
	return sps, translate(err)
}

// UpdateDeviceCredentials stores new credentials and, when they differ
// from the previous ones, tears down the device's live connection.
//
// Reconnection is deliberately not automatic: the next subscribe or
// publish re-establishes the connection with the fresh credentials.
// Hiding the teardown inside the update path would mask that contract.
func (s *Service) UpdateDeviceCredentials(ctx context.Context, deviceID string, creds device.Credentials) error {
	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return translate(err)
	}

	if err := s.devices.UpdateCredentials(ctx, deviceID, creds); err != nil {
		return translate(err)
	}

	if dev.Username != creds.Username || dev.Password != creds.Password {
		s.registry.Disconnect(deviceID)
		s.logger.Info("device disconnected after credential change", "device_id", deviceID)
	}
	return nil
}

// DeleteDevice tears down the device's connection and removes the
// device with every dependent record in one transaction.
func (s *Service) DeleteDevice(ctx context.Context, deviceID string) error {
	s.registry.Disconnect(deviceID)

	if err := s.devices.Delete(ctx, deviceID); err != nil {
		return translate(err)
	}
	s.logger.Info("device deleted", "device_id", deviceID)
	return nil
}

// InitializeAllSubscriptions replays every persisted subscription into
// live broker connections. Called once at process startup.
//
// Failures are per device: one device's broken credentials or broker
// rejection never blocks the rest of the fleet. Returns the number of
// subscriptions installed.
func (s *Service) InitializeAllSubscriptions(ctx context.Context) (int, error) {
	subs, err := s.subs.ListAll(ctx)
	if err != nil {
		return 0, translate(err)
	}

	installed := 0
	skipDevice := ""
	for _, sub := range subs {
		if sub.DeviceID == skipDevice {
			continue
		}

		if _, err := s.ensureConnection(ctx, sub.DeviceID); err != nil {
			s.logger.Warn("skipping device during subscription replay",
				"device_id", sub.DeviceID,
				"error", err,
			)
			skipDevice = sub.DeviceID
			continue
		}

		if err := s.registry.Subscribe(sub.DeviceID, sub.Pattern, sub.QoS); err != nil {
			s.logger.Warn("failed to replay subscription",
				"device_id", sub.DeviceID,
				"pattern", sub.Pattern,
				"error", err,
			)
			continue
		}
		installed++
	}

	s.logger.Info("subscription replay complete", "persisted", len(subs), "installed", installed)
	return installed, nil
}

// ShutdownAll stops the scheduler driver and disconnects every device.
// Called once at process shutdown.
func (s *Service) ShutdownAll() {
	s.engine.Stop()
	s.registry.DisconnectAll()
	s.logger.Info("gateway shut down")
}
