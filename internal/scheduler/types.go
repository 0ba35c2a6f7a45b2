package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a scheduled publication.
type Status string

// Scheduled publication statuses.
const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether automatic processing has finished with
// this status.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusFailed || s == StatusCancelled
}

// ScheduledPublication is one deferred delivery.
type ScheduledPublication struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	Topic       string     `json:"topic"`
	Payload     []byte     `json:"payload"`
	QoS         byte       `json:"qos"`
	Retain      bool       `json:"retain"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      Status     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// UpdateFields carries the optional fields of an update request.
// Nil pointers leave the stored value untouched.
type UpdateFields struct {
	Topic       *string
	Payload     []byte
	QoS         *byte
	Retain      *bool
	ScheduledAt *time.Time
}

// GenerateID creates a new unique scheduled-publication identifier.
func GenerateID() string {
	return uuid.New().String()
}
