// Package topics implements MQTT-style topic pattern validation and
// matching for FleetGate.
//
// Patterns are `/`-delimited strings. A segment is either a literal
// token, the single-level wildcard `+` (matches exactly one segment),
// or the multi-level wildcard `#` (matches any number of trailing
// segments, including zero, and must be the final segment).
//
// The package is pure: no I/O, no shared state, safe for concurrent use.
package topics
