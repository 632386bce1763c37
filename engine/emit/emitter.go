// Package emit provides event emission for the execution core. The Runner
// (and the executors it dispatches to) never log directly: they call an
// Emitter, and cmd/server decides whether that means stdout text, JSON
// lines, or OpenTelemetry spans.
package emit

import "context"

// Emitter receives Events from the execution core.
//
// Implementations should be non-blocking and thread-safe: a Runner may call
// Emit concurrently across multiple in-flight Executions, and a slow or
// failing backend must never stall or fail a node's execution.
type Emitter interface {
	// Emit sends a single event. Must not panic or block on I/O.
	Emit(event Event)

	// EmitBatch sends multiple events in one call, preserving order.
	// Returns an error only for configuration-level failures, never for a
	// single bad event.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events are delivered, or ctx expires.
	// Safe to call multiple times.
	Flush(ctx context.Context) error
}
