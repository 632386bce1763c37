package engine

import (
	"context"
	"errors"
	"testing"

	"adworkflow/engine/emit"
	"adworkflow/engine/store"
)

type constExecutor struct {
	out Values
	err error
}

func (c *constExecutor) Execute(_ context.Context, _ map[string]Values, _ Values, _ ExecContext) (Values, error) {
	return c.out, c.err
}

func newTestRunner(t *testing.T) (*Runner, *store.MemStore) {
	t.Helper()
	mem := store.NewMemStore()
	reg := NewRegistry()
	reg.Register(TextInput, &constExecutor{out: Values{"text": "hello"}})
	reg.Register(Output, &constExecutor{out: Values{"status": "ok", "cost": 0.01}})
	return NewRunner(reg, mem, emit.NewNullEmitter()), mem
}

func seedRunnerExecution(t *testing.T, mem *store.MemStore, nodes []Node) string {
	t.Helper()
	ctx := context.Background()
	wf := store.Workflow{ID: "wf-1", UserID: "user-1"}
	for _, n := range nodes {
		wf.Nodes = append(wf.Nodes, store.Node{ID: n.ID, WorkflowID: "wf-1", Type: string(n.Type), HasBreakpoint: n.HasBreakpoint})
	}
	mem.SeedWorkflow(wf)

	id, err := mem.CreateExecution(ctx, "wf-1")
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if err := mem.CreateNodeExecutions(ctx, id, wf.Nodes); err != nil {
		t.Fatalf("CreateNodeExecutions: %v", err)
	}
	return id
}

func TestRunner_Run_CompletesStraightLineGraph(t *testing.T) {
	runner, mem := newTestRunner(t)
	nodes := []Node{
		{ID: "n1", Type: TextInput},
		{ID: "n2", Type: Output},
	}
	edges := []Edge{{ID: "e1", Source: "n1", Target: "n2"}}
	execID := seedRunnerExecution(t, mem, nodes)

	ec := ExecContext{ExecutionID: execID, UserID: "user-1"}
	res, err := runner.Run(context.Background(), ec, nodes, edges, []string{"n1", "n2"}, 0, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != store.ExecutionCompleted {
		t.Fatalf("status = %s, want COMPLETED", res.Status)
	}

	exec, err := mem.FetchExecution(context.Background(), execID)
	if err != nil {
		t.Fatalf("FetchExecution: %v", err)
	}
	if exec.TotalCost != 0.01 {
		t.Errorf("total cost = %v, want 0.01", exec.TotalCost)
	}
}

func TestRunner_Run_PausesAtBreakpoint(t *testing.T) {
	runner, mem := newTestRunner(t)
	nodes := []Node{
		{ID: "n1", Type: TextInput},
		{ID: "n2", Type: Output, HasBreakpoint: true},
	}
	edges := []Edge{{ID: "e1", Source: "n1", Target: "n2"}}
	execID := seedRunnerExecution(t, mem, nodes)

	ec := ExecContext{ExecutionID: execID, UserID: "user-1"}
	res, err := runner.Run(context.Background(), ec, nodes, edges, []string{"n1", "n2"}, 0, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != store.ExecutionPaused || res.CurrentNodeID != "n2" {
		t.Fatalf("got %+v, want PAUSED at n2", res)
	}

	nes, err := mem.FetchNodeExecutions(context.Background(), execID)
	if err != nil {
		t.Fatalf("FetchNodeExecutions: %v", err)
	}
	if nes[0].Status != store.NodeCompleted {
		t.Errorf("n1 status = %s, want COMPLETED", nes[0].Status)
	}
	if nes[1].Status != store.NodePaused {
		t.Errorf("n2 status = %s, want PAUSED", nes[1].Status)
	}
}

func TestRunner_StepNode_PausesAtNext(t *testing.T) {
	runner, mem := newTestRunner(t)
	nodes := []Node{
		{ID: "n1", Type: TextInput},
		{ID: "n2", Type: Output},
	}
	edges := []Edge{{ID: "e1", Source: "n1", Target: "n2"}}
	execID := seedRunnerExecution(t, mem, nodes)

	ec := ExecContext{ExecutionID: execID, UserID: "user-1"}
	res, err := runner.StepNode(context.Background(), ec, nodes, edges, []string{"n1", "n2"}, 0)
	if err != nil {
		t.Fatalf("StepNode: %v", err)
	}
	if res.Status != store.ExecutionPaused || res.CurrentNodeID != "n2" {
		t.Fatalf("got %+v, want PAUSED at n2", res)
	}
}

func TestRunner_StepNode_LastNodeCompletes(t *testing.T) {
	runner, mem := newTestRunner(t)
	nodes := []Node{{ID: "n1", Type: Output}}
	execID := seedRunnerExecution(t, mem, nodes)

	ec := ExecContext{ExecutionID: execID, UserID: "user-1"}
	res, err := runner.StepNode(context.Background(), ec, nodes, nil, []string{"n1"}, 0)
	if err != nil {
		t.Fatalf("StepNode: %v", err)
	}
	if res.Status != store.ExecutionCompleted {
		t.Fatalf("got %+v, want COMPLETED", res)
	}
}

func TestRunner_Run_NodeFailureRecordsFailedStatus(t *testing.T) {
	mem := store.NewMemStore()
	reg := NewRegistry()
	reg.Register(TextInput, &constExecutor{err: errors.New("boom")})

	runner := NewRunner(reg, mem, emit.NewNullEmitter())
	nodes := []Node{{ID: "n1", Type: TextInput}}
	execID := seedRunnerExecution(t, mem, nodes)

	ec := ExecContext{ExecutionID: execID, UserID: "user-1"}
	res, err := runner.Run(context.Background(), ec, nodes, nil, []string{"n1"}, 0, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != store.ExecutionFailed || res.CurrentNodeID != "n1" {
		t.Fatalf("got %+v, want FAILED at n1", res)
	}

	exec, err := mem.FetchExecution(context.Background(), execID)
	if err != nil {
		t.Fatalf("FetchExecution: %v", err)
	}
	if exec.ErrorMessage == "" {
		t.Error("expected ErrorMessage to be set")
	}
}

func TestRunner_Run_AlreadyCancelledStopsImmediately(t *testing.T) {
	runner, mem := newTestRunner(t)
	nodes := []Node{{ID: "n1", Type: TextInput}}
	execID := seedRunnerExecution(t, mem, nodes)

	if err := mem.UpdateExecution(context.Background(), execID, store.ExecutionUpdate{Status: store.ExecutionCancelled}); err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}

	ec := ExecContext{ExecutionID: execID, UserID: "user-1"}
	res, err := runner.Run(context.Background(), ec, nodes, nil, []string{"n1"}, 0, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != store.ExecutionCancelled {
		t.Fatalf("status = %s, want CANCELLED", res.Status)
	}

	nes, err := mem.FetchNodeExecutions(context.Background(), execID)
	if err != nil {
		t.Fatalf("FetchNodeExecutions: %v", err)
	}
	if nes[0].Status != store.NodePending {
		t.Errorf("n1 status = %s, want PENDING (never dispatched)", nes[0].Status)
	}
}
