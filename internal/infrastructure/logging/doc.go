// Package logging provides structured logging for FleetGate.
//
// It wraps log/slog with configuration-driven format and level selection
// plus default service/version attributes. Components should depend on a
// small local Logger interface and accept this package's Logger at
// wiring time, keeping packages testable without a real logger.
package logging
