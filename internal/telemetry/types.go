package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Value types discovered during flattening.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeNull    = "null"
)

// Key is a named, typed attribute discovered for a device.
// Unique per (device, name). The type follows the most recent
// observation; historical values keep whatever was written.
type Key struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Value is one immutable observed value.
type Value struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	KeyID      *string   `json:"key_id,omitempty"`
	Value      string    `json:"value"`
	Partition  string    `json:"partition"`
	ObservedAt time.Time `json:"observed_at"`
}

// PartitionFor derives the coarse time partition for an observation:
// the calendar month in UTC.
func PartitionFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// GenerateKeyID creates a new unique telemetry key identifier.
func GenerateKeyID() string {
	return uuid.New().String()
}
