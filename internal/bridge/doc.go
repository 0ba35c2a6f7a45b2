// Package bridge manages one long-lived broker connection per device.
//
// The Registry is the single owner of every live connection. Callers
// never hold a connection handle directly; they address operations by
// device identifier and the registry creates, reuses, or tears down
// the underlying MQTT client.
//
// Connection lifecycle:
//   - Created lazily on the first Connect for a device.
//   - Reused by subsequent Connect calls regardless of the credentials
//     passed (credential rotation requires an explicit Disconnect first).
//   - Destroyed on Disconnect, device deletion, or process shutdown.
//
// Each connection installs exactly one inbound-message handler. The
// handler tests every message against the device's active subscription
// patterns and forwards matches to the telemetry sink.
//
// Thread Safety:
//   - All Registry methods are safe for concurrent use.
//   - Operations on different devices proceed fully in parallel;
//     operations on the same device are mutually exclusive.
package bridge
