// Package device manages FleetGate device records.
//
// A device is the unit of identity on the broker: each record carries
// the credentials used to authenticate that device's dedicated broker
// connection. Credential changes deliberately do not touch live
// connections - callers disconnect the device explicitly and let the
// next operation reconnect with the fresh snapshot.
//
// Deleting a device cascades over every record FleetGate holds for it
// (subscriptions, publications, scheduled publications, telemetry keys
// and values) in a single transaction.
package device
