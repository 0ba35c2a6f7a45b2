package telemetry

import "errors"

var (
	// ErrKeyNotFound is returned when a telemetry key does not exist.
	ErrKeyNotFound = errors.New("telemetry: key not found")

	// ErrStoreUnavailable is returned when the key registry could not be
	// written at all during an ingest pass.
	ErrStoreUnavailable = errors.New("telemetry: store unavailable")
)
