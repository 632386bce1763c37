package store

import (
	"context"
	"errors"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSQLiteWorkflow(t *testing.T, s *SQLiteStore, wf Workflow) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO workflows (id, user_id) VALUES (?, ?)`, wf.ID, wf.UserID); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	for _, n := range wf.Nodes {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO nodes (id, workflow_id, type, name, has_breakpoint) VALUES (?, ?, ?, ?, ?)`,
			n.ID, wf.ID, n.Type, n.Name, n.HasBreakpoint); err != nil {
			t.Fatalf("seed node: %v", err)
		}
	}
	for _, e := range wf.Edges {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO edges (id, workflow_id, source_node_id, target_node_id) VALUES (?, ?, ?, ?)`,
			e.ID, wf.ID, e.Source, e.Target); err != nil {
			t.Fatalf("seed edge: %v", err)
		}
	}
}

func TestSQLiteStore_FetchWorkflow(t *testing.T) {
	s := newTestSQLiteStore(t)
	wf := Workflow{
		ID:     "wf-1",
		UserID: "user-1",
		Nodes: []Node{
			{ID: "n1", WorkflowID: "wf-1", Type: "TEXT_INPUT"},
			{ID: "n2", WorkflowID: "wf-1", Type: "OUTPUT"},
		},
		Edges: []Edge{{ID: "e1", WorkflowID: "wf-1", Source: "n1", Target: "n2"}},
	}
	seedSQLiteWorkflow(t, s, wf)

	ctx := context.Background()
	got, err := s.FetchWorkflow(ctx, wf.ID, wf.UserID)
	if err != nil {
		t.Fatalf("FetchWorkflow: %v", err)
	}
	if len(got.Nodes) != 2 || len(got.Edges) != 1 {
		t.Errorf("got %d nodes, %d edges, want 2, 1", len(got.Nodes), len(got.Edges))
	}

	if _, err := s.FetchWorkflow(ctx, wf.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner fetch: got %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ExecutionLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	wf := Workflow{
		ID:     "wf-1",
		UserID: "user-1",
		Nodes: []Node{
			{ID: "n1", WorkflowID: "wf-1", Type: "TEXT_INPUT"},
			{ID: "n2", WorkflowID: "wf-1", Type: "OUTPUT"},
		},
	}
	seedSQLiteWorkflow(t, s, wf)
	ctx := context.Background()

	execID, err := s.CreateExecution(ctx, wf.ID)
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if err := s.CreateNodeExecutions(ctx, execID, wf.Nodes); err != nil {
		t.Fatalf("CreateNodeExecutions: %v", err)
	}

	nes, err := s.FetchNodeExecutions(ctx, execID)
	if err != nil {
		t.Fatalf("FetchNodeExecutions: %v", err)
	}
	if len(nes) != 2 {
		t.Fatalf("got %d node executions, want 2", len(nes))
	}

	if err := s.UpdateNodeExecution(ctx, execID, "n1", NodeExecutionUpdate{
		Status:     NodeCompleted,
		OutputData: map[string]any{"text": "hi"},
	}); err != nil {
		t.Fatalf("UpdateNodeExecution: %v", err)
	}

	nes, err = s.FetchNodeExecutions(ctx, execID)
	if err != nil {
		t.Fatalf("FetchNodeExecutions: %v", err)
	}
	if nes[0].OutputData["text"] != "hi" {
		t.Errorf("output_data round-trip: got %v", nes[0].OutputData)
	}

	cost := 1.25
	if err := s.UpdateExecution(ctx, execID, ExecutionUpdate{Status: ExecutionCompleted, TotalCost: &cost}); err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}

	exec, err := s.FetchExecutionForUser(ctx, execID, wf.UserID)
	if err != nil {
		t.Fatalf("FetchExecutionForUser: %v", err)
	}
	if exec.Status != ExecutionCompleted {
		t.Errorf("status = %s, want COMPLETED", exec.Status)
	}
	if exec.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if exec.TotalCost != cost {
		t.Errorf("total cost = %v, want %v", exec.TotalCost, cost)
	}
}

func TestSQLiteStore_TerminalStatusIsAbsorbing(t *testing.T) {
	s := newTestSQLiteStore(t)
	wf := Workflow{ID: "wf-1", UserID: "user-1"}
	seedSQLiteWorkflow(t, s, wf)
	ctx := context.Background()

	execID, err := s.CreateExecution(ctx, wf.ID)
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if err := s.UpdateExecution(ctx, execID, ExecutionUpdate{Status: ExecutionFailed}); err != nil {
		t.Fatalf("UpdateExecution(FAILED): %v", err)
	}
	if err := s.UpdateExecution(ctx, execID, ExecutionUpdate{Status: ExecutionCancelled}); err != nil {
		t.Fatalf("UpdateExecution(CANCELLED): %v", err)
	}

	exec, err := s.FetchExecution(ctx, execID)
	if err != nil {
		t.Fatalf("FetchExecution: %v", err)
	}
	if exec.Status != ExecutionFailed {
		t.Errorf("status = %s, want FAILED to have stuck", exec.Status)
	}
}

func TestSQLiteStore_CreateGeneration(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	err := s.CreateGeneration(ctx, Generation{
		ExecutionID: "exec-1",
		ModelID:     "flux-pro",
		Prompt:      "a red fox",
		ImageURLs:   []string{"https://example.com/a.png"},
		Cost:        0.04,
	})
	if err != nil {
		t.Fatalf("CreateGeneration: %v", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations WHERE execution_id = ?`, "exec-1").Scan(&count); err != nil {
		t.Fatalf("count generations: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d generations, want 1", count)
	}
}
