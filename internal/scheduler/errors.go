package scheduler

import "errors"

var (
	// ErrNotFound is returned when a scheduled publication does not exist.
	ErrNotFound = errors.New("scheduler: scheduled publication not found")

	// ErrInvalidState is returned when mutating a record already published.
	ErrInvalidState = errors.New("scheduler: publication already published")

	// ErrInvalidSchedule is returned for an empty topic, out-of-range QoS
	// or missing scheduled time.
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule request")
)
