package controller

import (
	"context"
	"testing"

	"adworkflow/engine"
	"adworkflow/engine/executor"
	"adworkflow/engine/store"
)

func newTestController(t *testing.T) (*Controller, *store.MemStore) {
	t.Helper()
	mem := store.NewMemStore()
	reg := engine.NewRegistry()
	reg.Register(engine.TextInput, executor.TextInputExecutor{})
	reg.Register(engine.Output, executor.OutputExecutor{})
	return New(mem, reg, nil, nil), mem
}

func seedWorkflow(t *testing.T, mem *store.MemStore) store.Workflow {
	t.Helper()
	wf := store.Workflow{
		ID:     "wf-1",
		UserID: "user-1",
		Nodes: []store.Node{
			{ID: "n1", WorkflowID: "wf-1", Type: "TEXT_INPUT", Config: map[string]any{"value": "hello"}},
			{ID: "n2", WorkflowID: "wf-1", Type: "OUTPUT"},
		},
		Edges: []store.Edge{{ID: "e1", WorkflowID: "wf-1", Source: "n1", Target: "n2"}},
	}
	mem.SeedWorkflow(wf)
	return wf
}

func TestController_Start_CompletesWorkflow(t *testing.T) {
	c, mem := newTestController(t)
	seedWorkflow(t, mem)

	res, err := c.Start(context.Background(), "wf-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Status != store.ExecutionCompleted {
		t.Fatalf("status = %s, want COMPLETED", res.Status)
	}
}

func TestController_Start_WrongOwnerFails(t *testing.T) {
	c, mem := newTestController(t)
	seedWorkflow(t, mem)

	if _, err := c.Start(context.Background(), "wf-1", "someone-else"); err != store.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestController_PrepareThenRun(t *testing.T) {
	c, mem := newTestController(t)
	seedWorkflow(t, mem)

	prepared, err := c.Prepare(context.Background(), "wf-1", "user-1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	exec, err := mem.FetchExecution(context.Background(), prepared.ExecutionID)
	if err != nil {
		t.Fatalf("FetchExecution: %v", err)
	}
	if exec.Status != store.ExecutionPending {
		t.Errorf("status after Prepare = %s, want PENDING", exec.Status)
	}

	res, err := c.Run(context.Background(), prepared)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != store.ExecutionCompleted {
		t.Fatalf("status = %s, want COMPLETED", res.Status)
	}
}

func TestController_StepAndCancel(t *testing.T) {
	mem := store.NewMemStore()
	reg := engine.NewRegistry()
	reg.Register(engine.TextInput, executor.TextInputExecutor{})
	reg.Register(engine.Output, executor.OutputExecutor{})
	c := New(mem, reg, nil, nil)

	wf := store.Workflow{
		ID:     "wf-1",
		UserID: "user-1",
		Nodes: []store.Node{
			{ID: "n1", WorkflowID: "wf-1", Type: "TEXT_INPUT", Config: map[string]any{"value": "hi"}},
			{ID: "n2", WorkflowID: "wf-1", Type: "OUTPUT", HasBreakpoint: true},
		},
		Edges: []store.Edge{{ID: "e1", WorkflowID: "wf-1", Source: "n1", Target: "n2"}},
	}
	mem.SeedWorkflow(wf)

	res, err := c.Start(context.Background(), "wf-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Status != store.ExecutionPaused {
		t.Fatalf("status = %s, want PAUSED", res.Status)
	}

	res, err = c.Step(context.Background(), res.ExecutionID, "user-1")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Status != store.ExecutionCompleted {
		t.Fatalf("status after step = %s, want COMPLETED", res.Status)
	}

	res, err = c.Cancel(context.Background(), res.ExecutionID, "user-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Status != store.ExecutionCancelled {
		t.Fatalf("status = %s, want CANCELLED (controller always writes the request)", res.Status)
	}

	exec, err := mem.FetchExecution(context.Background(), res.ExecutionID)
	if err != nil {
		t.Fatalf("FetchExecution: %v", err)
	}
	if exec.Status != store.ExecutionCompleted {
		t.Errorf("terminal status should be absorbing: got %s, want COMPLETED unchanged", exec.Status)
	}
}

func TestController_StepOnNonPausedExecutionIsNoOp(t *testing.T) {
	c, mem := newTestController(t)
	seedWorkflow(t, mem)

	res, err := c.Start(context.Background(), "wf-1", "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	res2, err := c.Step(context.Background(), res.ExecutionID, "user-1")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res2.Status != store.ExecutionCompleted {
		t.Fatalf("status = %s, want COMPLETED unchanged", res2.Status)
	}
}
