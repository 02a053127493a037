// Package audit relays magic-link audit events to a caller-supplied sink
// without blocking the request path.
//
// [Dispatcher] buffers events and delivers them from a single goroutine. When
// DropIfFull is set a full buffer drops the event and counts it; otherwise
// Emit waits for buffer space or context cancellation.
//
// The package does not decide which events exist. Issuance and consumption
// code builds the [Event] and must leave token material out of it.
package audit
