package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Topic is a registered broker topic path with permission flags.
type Topic struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	IsPublic       bool      `json:"is_public"`
	AllowSubscribe bool      `json:"allow_subscribe"`
	CreatedAt      time.Time `json:"created_at"`
}

// GenerateID creates a new unique topic identifier.
func GenerateID() string {
	return uuid.New().String()
}
