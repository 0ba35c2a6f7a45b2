package gateway

import (
	"errors"
	"fmt"

	"github.com/fleetgate/fleetgate-core/internal/bridge"
	"github.com/fleetgate/fleetgate-core/internal/catalog"
	"github.com/fleetgate/fleetgate-core/internal/device"
	"github.com/fleetgate/fleetgate-core/internal/scheduler"
)

// Stable error kinds exposed across the facade boundary.
// Use errors.Is() to classify failures.
var (
	// ErrNotFound indicates a device, topic or scheduled-publication
	// record does not exist.
	ErrNotFound = errors.New("gateway: not found")

	// ErrInvalidInput indicates an empty required field, malformed
	// scheduled time or out-of-range QoS.
	ErrInvalidInput = errors.New("gateway: invalid input")

	// ErrInvalidState indicates a mutation of a terminal-state record.
	ErrInvalidState = errors.New("gateway: invalid state")

	// ErrPermissionDenied indicates the topic does not allow the
	// requested operation, or the device is disabled.
	ErrPermissionDenied = errors.New("gateway: permission denied")

	// ErrConnection indicates a broker connect/publish/subscribe failure.
	ErrConnection = errors.New("gateway: connection error")

	// ErrDuplicate indicates a unique-constraint violation, such as
	// re-subscribing to the same pattern.
	ErrDuplicate = errors.New("gateway: duplicate")
)

// translate maps collaborator errors into the facade taxonomy.
// Unclassified errors pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, catalog.ErrTopicNotFound),
		errors.Is(err, scheduler.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, err)

	case errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidCredentials),
		errors.Is(err, catalog.ErrInvalidPath),
		errors.Is(err, scheduler.ErrInvalidSchedule),
		errors.Is(err, bridge.ErrInvalidTopic),
		errors.Is(err, bridge.ErrInvalidPattern),
		errors.Is(err, bridge.ErrInvalidQoS):
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)

	case errors.Is(err, scheduler.ErrInvalidState):
		return fmt.Errorf("%w: %s", ErrInvalidState, err)

	case errors.Is(err, device.ErrDeviceExists),
		errors.Is(err, ErrSubscriptionExists):
		return fmt.Errorf("%w: %s", ErrDuplicate, err)

	case errors.Is(err, bridge.ErrConnectionFailed),
		errors.Is(err, bridge.ErrNotConnected),
		errors.Is(err, bridge.ErrPublishFailed),
		errors.Is(err, bridge.ErrSubscribeFailed),
		errors.Is(err, bridge.ErrUnsubscribeFailed):
		return fmt.Errorf("%w: %s", ErrConnection, err)
	}

	return err
}

// ErrSubscriptionExists is returned when a device already holds the
// requested subscription pattern.
var ErrSubscriptionExists = errors.New("gateway: subscription already exists")
