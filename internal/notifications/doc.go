// Package notifications publishes curator run events to ntfy.
//
// When no topic is configured NewService returns a no-op implementation, so
// callers never need to nil-check. Delivery failures are returned to the
// caller, which logs them without failing the run.
package notifications
