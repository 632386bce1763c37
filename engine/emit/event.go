package emit

// Event is an observability event emitted while an Execution runs: node
// start/complete, a pause, a failure, or completion. Events carry no
// behavior of their own — they exist so the execution core stays decoupled
// from whatever logs, traces, or metrics backend is wired up by cmd/server.
type Event struct {
	// ExecutionID identifies the Execution that produced this event.
	ExecutionID string

	// Step is the node's position in the topologically sorted run order
	// (1-indexed). Zero when the producer does not set it; the engine
	// Runner leaves it zero on every event and identifies the node by NodeID.
	Step int

	// NodeID identifies which node emitted this event. Empty for
	// execution-level events.
	NodeID string

	// Msg is a short, stable event name, e.g. "node_start", "node_complete",
	// "node_failed", "execution_paused", "execution_completed".
	Msg string

	// Meta holds event-specific structured data. Common keys: "error",
	// "duration_ms", "cost", "status".
	Meta map[string]any
}
