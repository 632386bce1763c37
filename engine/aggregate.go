package engine

// GatherInputs builds the fan-in bundle for targetNodeID: the outputs of
// every predecessor that has already produced output, keyed by source node
// ID (spec §4.3). Edges whose source has no recorded output yet (not yet
// executed, or skipped) are simply absent from the bundle — the Runner
// never gathers inputs for a node before all its predecessors have run,
// since nodes are dispatched in topological order, so in practice every
// edge's source is present by the time this is called.
func GatherInputs(targetNodeID string, edges []Edge, outputs map[string]Values) map[string]Values {
	inputs := make(map[string]Values)
	for _, e := range edges {
		if e.Target != targetNodeID {
			continue
		}
		if out, ok := outputs[e.Source]; ok {
			inputs[e.Source] = out
		}
	}
	return inputs
}

// MergeInputs flattens a fan-in bundle into a single Values map for
// executors that don't care which predecessor produced which key.
//
// Open question resolved (spec §9): iteration order for last-writer-wins is
// defined as the topological position of the source node within sorted,
// not map/insertion order. This makes the merge deterministic for a given
// graph: the node that runs later in the schedule wins a key collision.
// Workflow authors are still expected not to create colliding keys across
// a fan-in (spec §4.3) — this only makes the tie-break reproducible.
func MergeInputs(inputs map[string]Values, sorted []string) Values {
	merged := make(Values)
	for _, nodeID := range sorted {
		src, ok := inputs[nodeID]
		if !ok {
			continue
		}
		for k, v := range src {
			merged[k] = v
		}
	}
	return merged
}
