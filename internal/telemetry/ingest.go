package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger interface for ingest diagnostics.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Mirror receives a copy of each stored value. Implemented by the
// InfluxDB client; writes are fire-and-forget.
type Mirror interface {
	WriteTelemetryValue(deviceID, keyName, keyType, value string, observedAt time.Time)
}

// Ingestor discovers telemetry keys and appends value history.
//
// Ingestion is at-least-once: duplicate broker deliveries produce
// duplicate value rows, which is acceptable for append-only history.
type Ingestor struct {
	repo   Repository
	mirror Mirror
	logger Logger
}

// NewIngestor creates an ingestor writing through repo.
// mirror may be nil to disable time-series mirroring.
func NewIngestor(repo Repository, mirror Mirror, logger Logger) *Ingestor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Ingestor{repo: repo, mirror: mirror, logger: logger}
}

// Ingest processes one inbound message for a device.
//
// A JSON object payload is flattened; each discovered field upserts its
// key and, unless null, appends one value row. Any other payload is
// stored whole as a string under a key named after the topic with `/`
// replaced by `.`.
//
// One field's failure never blocks the others; failures are logged and
// skipped. An error is returned only when every key write failed,
// which signals the store itself is unreachable.
func (i *Ingestor) Ingest(ctx context.Context, deviceID, topic string, payload []byte) error {
	observedAt := time.Now().UTC()

	fields, ok := flatten(payload)
	if !ok {
		fields = []field{{
			name:     strings.ReplaceAll(topic, "/", "."),
			typ:      TypeString,
			value:    string(payload),
			hasValue: true,
		}}
	}
	if len(fields) == 0 {
		return nil
	}

	failed := 0
	for _, f := range fields {
		if err := i.storeField(ctx, deviceID, f, observedAt); err != nil {
			failed++
			i.logger.Warn("telemetry field skipped",
				"device_id", deviceID,
				"key", f.name,
				"error", err,
			)
		}
	}

	if failed == len(fields) {
		return fmt.Errorf("%w: all %d keys failed for device %s", ErrStoreUnavailable, failed, deviceID)
	}
	return nil
}

func (i *Ingestor) storeField(ctx context.Context, deviceID string, f field, observedAt time.Time) error {
	key, err := i.repo.UpsertKey(ctx, deviceID, f.name, f.typ)
	if err != nil {
		return err
	}

	if !f.hasValue {
		return nil
	}

	value := &Value{
		DeviceID:   deviceID,
		KeyID:      &key.ID,
		Value:      f.value,
		Partition:  PartitionFor(observedAt),
		ObservedAt: observedAt,
	}
	if err := i.repo.InsertValue(ctx, value); err != nil {
		return err
	}

	if i.mirror != nil {
		i.mirror.WriteTelemetryValue(deviceID, key.Name, key.Type, f.value, observedAt)
	}
	return nil
}
