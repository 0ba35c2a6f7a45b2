package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Logger interface for engine diagnostics.
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

// Publisher delivers a due publication. Implemented by the gateway's
// publish path so scheduled and immediate publications travel the same
// route to the broker.
type Publisher interface {
	Publish(ctx context.Context, deviceID, topic string, payload []byte, qos byte, retain bool) error
}

const maxQoS = 2

// Engine drives the scheduled-publication state machine.
type Engine struct {
	repo      Repository
	publisher Publisher
	logger    Logger
	interval  time.Duration

	// inFlight guards ProcessDue: at most one pass process-wide.
	inFlight atomic.Bool

	// trigger carries out-of-band due-check requests. Buffered with
	// capacity one; a trigger fired while one is already queued is
	// dropped, matching the one-pass guard's drop semantics.
	trigger chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewEngine creates an engine polling at interval.
func NewEngine(repo Repository, publisher Publisher, interval time.Duration, logger Logger) *Engine {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		trigger:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Schedule validates the request, creates a PENDING record and fires an
// immediate due-check so a near-term schedule is not delayed by the
// polling interval.
func (e *Engine) Schedule(ctx context.Context, sp *ScheduledPublication) (*ScheduledPublication, error) {
	if err := validateSchedule(sp.Topic, sp.QoS, sp.ScheduledAt); err != nil {
		return nil, err
	}

	if sp.ID == "" {
		sp.ID = GenerateID()
	}
	sp.Status = StatusPending
	sp.PublishedAt = nil

	if err := e.repo.Create(ctx, sp); err != nil {
		return nil, err
	}

	e.TriggerNow()
	return sp, nil
}

// Update applies the provided fields to a record.
//
// Fails with ErrNotFound if absent and ErrInvalidState if already
// PUBLISHED, leaving the record untouched. Status resets to PENDING and
// any published timestamp is cleared, then a due-check fires.
func (e *Engine) Update(ctx context.Context, id string, fields UpdateFields) (*ScheduledPublication, error) {
	sp, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Status == StatusPublished {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, id)
	}

	if fields.Topic != nil {
		sp.Topic = *fields.Topic
	}
	if fields.Payload != nil {
		sp.Payload = fields.Payload
	}
	if fields.QoS != nil {
		sp.QoS = *fields.QoS
	}
	if fields.Retain != nil {
		sp.Retain = *fields.Retain
	}
	if fields.ScheduledAt != nil {
		sp.ScheduledAt = *fields.ScheduledAt
	}

	if err := validateSchedule(sp.Topic, sp.QoS, sp.ScheduledAt); err != nil {
		return nil, err
	}

	sp.Status = StatusPending
	sp.PublishedAt = nil

	if err := e.repo.Update(ctx, sp); err != nil {
		return nil, err
	}

	e.TriggerNow()
	return sp, nil
}

// Cancel marks a record CANCELLED so no future pass delivers it.
//
// Fails with ErrNotFound if absent and ErrInvalidState if already
// PUBLISHED. Cancelling cannot abort a delivery already in flight.
func (e *Engine) Cancel(ctx context.Context, id string) (*ScheduledPublication, error) {
	sp, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sp.Status == StatusPublished {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, id)
	}

	sp.Status = StatusCancelled
	if err := e.repo.Update(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// Get retrieves one record.
func (e *Engine) Get(ctx context.Context, id string) (*ScheduledPublication, error) {
	return e.repo.GetByID(ctx, id)
}

// List retrieves all records.
func (e *Engine) List(ctx context.Context) ([]ScheduledPublication, error) {
	return e.repo.List(ctx)
}

// ListByDevice retrieves one device's records.
func (e *Engine) ListByDevice(ctx context.Context, deviceID string) ([]ScheduledPublication, error) {
	return e.repo.ListByDevice(ctx, deviceID)
}

// ProcessDue delivers every PENDING record whose scheduled time has
// passed and returns the count that transitioned to PUBLISHED.
//
// One record's failure marks it FAILED and never aborts the rest of the
// batch. A pass requested while another is in flight returns 0 without
// side effects; the next tick picks up whatever remains due.
func (e *Engine) ProcessDue(ctx context.Context) (int, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer e.inFlight.Store(false)

	due, err := e.repo.ListDue(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("listing due publications: %w", err)
	}

	published := 0
	for i := range due {
		sp := &due[i]

		if err := e.publisher.Publish(ctx, sp.DeviceID, sp.Topic, sp.Payload, sp.QoS, sp.Retain); err != nil {
			e.logger.Warn("scheduled delivery failed",
				"id", sp.ID,
				"device_id", sp.DeviceID,
				"topic", sp.Topic,
				"error", err,
			)
			sp.Status = StatusFailed
		} else {
			now := time.Now().UTC()
			sp.Status = StatusPublished
			sp.PublishedAt = &now
			published++
		}

		if err := e.repo.Update(ctx, sp); err != nil {
			e.logger.Error("failed to record delivery outcome",
				"id", sp.ID,
				"status", sp.Status,
				"error", err,
			)
		}
	}

	if len(due) > 0 {
		e.logger.Info("processed due publications",
			"due", len(due),
			"published", published,
		)
	}
	return published, nil
}

// TriggerNow requests an out-of-band due-check. Never blocks; the
// request is dropped if one is already queued.
func (e *Engine) TriggerNow() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Start runs the recurring driver: one immediate pass to catch
// publications that became due while the process was down, then a pass
// per tick or trigger until Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(e.done)

		if _, err := e.ProcessDue(ctx); err != nil {
			e.logger.Error("startup due-check failed", "error", err)
		}

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
			case <-e.trigger:
			}

			if _, err := e.ProcessDue(ctx); err != nil {
				e.logger.Error("due-check failed", "error", err)
			}
		}
	}()
}

// Stop halts the driver and waits for the loop to exit. Safe to call
// more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	if e.started.Load() {
		<-e.done
	}
}

func validateSchedule(topic string, qos byte, scheduledAt time.Time) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidSchedule)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: QoS must be 0, 1 or 2", ErrInvalidSchedule)
	}
	if scheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled time is required", ErrInvalidSchedule)
	}
	return nil
}
