package device

import (
	"time"

	"github.com/google/uuid"
)

// Device represents a credentialed member of the fleet.
type Device struct {
	// ID is the unique device identifier.
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Username and Password authenticate the device's broker connection.
	Username string `json:"username"`
	Password string `json:"-"`

	// Enabled gates whether the gateway will open connections for the
	// device. Disabled devices keep their records but cannot connect.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credentials is the snapshot handed to the broker connection layer.
type Credentials struct {
	Username string
	Password string
}

// Credentials returns the device's current credential snapshot.
func (d *Device) Credentials() Credentials {
	return Credentials{Username: d.Username, Password: d.Password}
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
