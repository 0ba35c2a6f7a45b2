// Package telemetry turns inbound device payloads of unknown shape
// into a queryable, time-partitioned key/value history.
//
// Schema discovery is dynamic: keys are created the first time a field
// is observed and their type follows the most recent observation.
// Values are append-only; history is superseded by newer rows, never
// mutated.
//
// A JSON object payload is flattened into dotted key paths. Arrays are
// recorded as a single "array"-typed key without further flattening.
// Anything that fails to parse is stored as one string value under a
// key derived from the message topic.
package telemetry
