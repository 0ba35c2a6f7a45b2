// Package config loads and validates FleetGate configuration.
//
// Configuration comes from a YAML file with hardcoded defaults applied
// first and environment variables (FLEETGATE_*) applied last. Validation
// happens once at load time; a missing broker address is a startup
// failure, not a per-operation error.
package config
