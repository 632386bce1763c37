package engine

import "testing"

func TestAnalyze_OrdersReachableSubgraphTopologically(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: TextInput},
		{ID: "b", Type: Prompt},
		{ID: "c", Type: Output},
	}
	edges := []Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "c"},
	}

	sorted, err := Analyze(nodes, edges)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(sorted) != len(want) {
		t.Fatalf("sorted = %v, want %v", sorted, want)
	}
	for i, id := range want {
		if sorted[i] != id {
			t.Fatalf("sorted = %v, want %v", sorted, want)
		}
	}
}

func TestAnalyze_ExcludesUnreachableNodes(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: TextInput},
		{ID: "orphan", Type: TextInput},
		{ID: "c", Type: Output},
	}
	edges := []Edge{
		{ID: "e1", Source: "a", Target: "c"},
	}

	sorted, err := Analyze(nodes, edges)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, id := range sorted {
		if id == "orphan" {
			t.Fatalf("sorted = %v, want orphan excluded", sorted)
		}
	}
	if len(sorted) != 2 {
		t.Fatalf("sorted = %v, want exactly [a c]", sorted)
	}
}

func TestAnalyze_RejectsCycle(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: TextInput},
		{ID: "b", Type: Prompt},
		{ID: "c", Type: Output},
	}
	edges := []Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "c"},
		{ID: "e3", Source: "c", Target: "a"},
	}

	_, err := Analyze(nodes, edges)
	if err == nil {
		t.Fatal("Analyze: want error for cyclic graph, got nil")
	}
	if _, ok := err.(*InvalidGraphError); !ok {
		t.Fatalf("err = %v (%T), want *InvalidGraphError", err, err)
	}
}

func TestAnalyze_RejectsGraphWithNoOutputNode(t *testing.T) {
	nodes := []Node{
		{ID: "a", Type: TextInput},
		{ID: "b", Type: Prompt},
	}
	edges := []Edge{{ID: "e1", Source: "a", Target: "b"}}

	_, err := Analyze(nodes, edges)
	if err == nil {
		t.Fatal("Analyze: want error for graph with no OUTPUT node, got nil")
	}
}
