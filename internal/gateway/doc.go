// Package gateway is the facade the transport layer calls into.
//
// It composes the device registry, topic catalog, broker connection
// registry, telemetry ingestor and scheduled-publication engine into
// the operations callers see: subscribe/unsubscribe, immediate and
// scheduled publishing, credential rotation, device deletion, and the
// process-lifecycle pair InitializeAllSubscriptions / ShutdownAll.
//
// Every error crossing this boundary is translated into the package's
// stable taxonomy (ErrNotFound, ErrInvalidInput, ErrInvalidState,
// ErrPermissionDenied, ErrConnection, ErrDuplicate); storage and
// broker internals never leak to callers.
package gateway
