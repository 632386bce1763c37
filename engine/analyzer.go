package engine

// Analyze validates a workflow's node/edge set and returns a topological
// order over the subgraph reachable from its OUTPUT nodes.
//
// Algorithm (spec §4.1):
//  1. Index nodes by ID; build forward and reverse adjacency. Edges whose
//     endpoints aren't both present in the node set are dropped.
//  2. Fail with InvalidGraphError if no node has Type == Output.
//  3. Reverse-BFS from every OUTPUT node to find the reachable set R.
//     Nodes outside R are dead code: no NodeExecution is ever created for
//     them (spec invariant I1).
//  4. Kahn's algorithm over the subgraph induced on R.
//  5. If fewer nodes were emitted than |R|, the reachable subgraph contains
//     a cycle; fail with InvalidGraphError.
//
// Ties within an in-degree level are broken by insertion order (the order
// nodes appear in the input slice), which is deterministic but not part of
// the contract: callers must not depend on cross-level peer ordering beyond
// the partial order edges impose.
func Analyze(nodes []Node, edges []Edge) ([]string, error) {
	byID := make(map[string]Node, len(nodes))
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		order = append(order, n.ID)
	}

	forward := make(map[string][]string, len(nodes))
	reverse := make(map[string][]string, len(nodes))
	for _, e := range edges {
		if _, ok := byID[e.Source]; !ok {
			continue
		}
		if _, ok := byID[e.Target]; !ok {
			continue
		}
		forward[e.Source] = append(forward[e.Source], e.Target)
		reverse[e.Target] = append(reverse[e.Target], e.Source)
	}

	var outputs []string
	for _, id := range order {
		if byID[id].Type == Output {
			outputs = append(outputs, id)
		}
	}
	if len(outputs) == 0 {
		return nil, &InvalidGraphError{Reason: "no OUTPUT node"}
	}

	reachable := make(map[string]bool, len(nodes))
	queue := make([]string, 0, len(outputs))
	for _, id := range outputs {
		if !reachable[id] {
			reachable[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, src := range reverse[cur] {
			if !reachable[src] {
				reachable[src] = true
				queue = append(queue, src)
			}
		}
	}

	inDegree := make(map[string]int, len(reachable))
	for id := range reachable {
		inDegree[id] = 0
	}
	for src := range reachable {
		for _, dst := range forward[src] {
			if reachable[dst] {
				inDegree[dst]++
			}
		}
	}

	ready := make([]string, 0, len(reachable))
	for _, id := range order {
		if reachable[id] && inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	sorted := make([]string, 0, len(reachable))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		sorted = append(sorted, cur)

		for _, dst := range forward[cur] {
			if !reachable[dst] {
				continue
			}
			inDegree[dst]--
			if inDegree[dst] == 0 {
				ready = append(ready, dst)
			}
		}
	}

	if len(sorted) != len(reachable) {
		return nil, &InvalidGraphError{Reason: "cycle in reachable subgraph"}
	}

	return sorted, nil
}
