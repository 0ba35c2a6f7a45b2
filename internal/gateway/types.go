package gateway

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is one device's persisted interest in a topic pattern.
// Replayed into a live broker connection at startup.
type Subscription struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Pattern   string    `json:"pattern"`
	QoS       byte      `json:"qos"`
	CreatedAt time.Time `json:"created_at"`
}

// Publication is the durable record of one delivered immediate publish.
type Publication struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	Topic       string    `json:"topic"`
	Payload     []byte    `json:"payload"`
	QoS         byte      `json:"qos"`
	Retain      bool      `json:"retain"`
	PublishedAt time.Time `json:"published_at"`
}

func generateID() string {
	return uuid.New().String()
}
