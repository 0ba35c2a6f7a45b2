// Package scheduler owns the durable state machine for publications
// that must be delivered at a future time.
//
// State machine:
//
//	PENDING --(due, delivery succeeds)--> PUBLISHED
//	PENDING --(due, delivery fails)-----> FAILED
//	PENDING --(cancel)------------------> CANCELLED
//	PENDING --(update)------------------> PENDING (fields replaced)
//
// PUBLISHED, FAILED and CANCELLED are terminal for automatic
// processing; PUBLISHED additionally rejects user-initiated update and
// cancel.
//
// A fixed-interval driver invokes ProcessDue for the lifetime of the
// process, plus once at startup to catch publications that became due
// while the process was down. Schedule and Update additionally fire an
// out-of-band due-check so near-term schedules are not delayed by the
// polling interval. At most one ProcessDue pass runs at a time
// process-wide; extra requests are dropped, not queued.
//
// Delivery is at-least-once across process restarts: a crash between
// delivery and the status write leaves the record PENDING and it will
// be delivered again on the next pass.
package scheduler
