// Package controller is the public API surface of the ad-workflow execution
// engine (spec §6 Debug Controller): start, step, and cancel operations,
// each scoped by a requesting user's ownership of the workflow/execution.
// It translates between the storage-agnostic store.Store records and the
// engine package's in-memory Node/Edge/Values types, then hands off to
// engine.Registry/engine.Runner.
package controller

import (
	"context"
	"fmt"

	"adworkflow/engine"
	"adworkflow/engine/emit"
	"adworkflow/engine/store"
)

// Controller is the single entry point callers (an HTTP handler, a test,
// a CLI) use to drive workflow executions.
type Controller struct {
	store    store.Store
	registry *engine.Registry
	emitter  emit.Emitter
	runner   *engine.Runner
}

// New builds a Controller backed by the given store and node registry.
// A nil emitter defaults to a no-op sink. metrics may be nil to disable
// Prometheus instrumentation entirely.
func New(s store.Store, registry *engine.Registry, emitter emit.Emitter, metrics *engine.Metrics) *Controller {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &Controller{
		store:    s,
		registry: registry,
		emitter:  emitter,
		runner:   engine.NewRunner(registry, s, emitter).WithMetrics(metrics),
	}
}

// StartResult is returned by Start and mirrors the original's
// execute_workflow/prepare_execution response shape.
type StartResult struct {
	ExecutionID   string
	Status        store.ExecutionStatus
	CurrentNodeID string
}

// Start loads a workflow, creates a new Execution with one PENDING
// NodeExecution per node reachable from an OUTPUT node (in topological
// order), and runs it to
// completion, a breakpoint, a failure, or cancellation.
func (c *Controller) Start(ctx context.Context, workflowID, userID string) (StartResult, error) {
	wf, err := c.store.FetchWorkflow(ctx, workflowID, userID)
	if err != nil {
		return StartResult{}, err
	}

	nodes, edges := toEngineGraph(wf)
	sorted, err := engine.Analyze(nodes, edges)
	if err != nil {
		return StartResult{}, fmt.Errorf("analyze workflow %s: %w", workflowID, err)
	}

	execID, err := c.store.CreateExecution(ctx, workflowID)
	if err != nil {
		return StartResult{}, err
	}

	orderedStoreNodes := make([]store.Node, len(sorted))
	nodeByID := make(map[string]store.Node, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeByID[n.ID] = n
	}
	for i, id := range sorted {
		orderedStoreNodes[i] = nodeByID[id]
	}
	if err := c.store.CreateNodeExecutions(ctx, execID, orderedStoreNodes); err != nil {
		return StartResult{}, err
	}

	ec := engine.ExecContext{ExecutionID: execID, UserID: userID}
	res, err := c.runner.Run(ctx, ec, nodes, edges, sorted, 0, true)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{ExecutionID: execID, Status: res.Status, CurrentNodeID: res.CurrentNodeID}, nil
}

// Prepare mirrors Start's setup (workflow load, Execution + NodeExecution
// creation) but does not run the graph. It is used by callers that want to
// hand the actual run off to a background supervisor (spec §6.2) rather
// than block the calling request on it.
func (c *Controller) Prepare(ctx context.Context, workflowID, userID string) (PreparedRun, error) {
	wf, err := c.store.FetchWorkflow(ctx, workflowID, userID)
	if err != nil {
		return PreparedRun{}, err
	}

	nodes, edges := toEngineGraph(wf)
	sorted, err := engine.Analyze(nodes, edges)
	if err != nil {
		return PreparedRun{}, fmt.Errorf("analyze workflow %s: %w", workflowID, err)
	}

	execID, err := c.store.CreateExecution(ctx, workflowID)
	if err != nil {
		return PreparedRun{}, err
	}

	nodeByID := make(map[string]store.Node, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeByID[n.ID] = n
	}
	orderedStoreNodes := make([]store.Node, len(sorted))
	for i, id := range sorted {
		orderedStoreNodes[i] = nodeByID[id]
	}
	if err := c.store.CreateNodeExecutions(ctx, execID, orderedStoreNodes); err != nil {
		return PreparedRun{}, err
	}
	if err := c.store.UpdateExecution(ctx, execID, store.ExecutionUpdate{Status: store.ExecutionPending}); err != nil {
		return PreparedRun{}, err
	}

	return PreparedRun{
		ExecutionID: execID,
		UserID:      userID,
		Nodes:       nodes,
		Edges:       edges,
		Sorted:      sorted,
	}, nil
}

// PreparedRun is everything a background supervisor needs to actually run
// a prepared Execution without re-fetching the workflow.
type PreparedRun struct {
	ExecutionID string
	UserID      string
	Nodes       []engine.Node
	Edges       []engine.Edge
	Sorted      []string
}

// Run executes a PreparedRun to completion/pause/failure/cancellation. It
// is the counterpart Supervisor.Launch calls on its own goroutine.
func (c *Controller) Run(ctx context.Context, p PreparedRun) (StartResult, error) {
	ec := engine.ExecContext{ExecutionID: p.ExecutionID, UserID: p.UserID}
	res, err := c.runner.Run(ctx, ec, p.Nodes, p.Edges, p.Sorted, 0, true)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{ExecutionID: p.ExecutionID, Status: res.Status, CurrentNodeID: res.CurrentNodeID}, nil
}

// Step resumes a PAUSED execution at its paused node and runs exactly one
// node before pausing again or completing. Calling Step on an execution
// that is not PAUSED is a no-op that reports the execution's current
// status (matching the original's step_execution contract).
func (c *Controller) Step(ctx context.Context, executionID, userID string) (StartResult, error) {
	exec, err := c.store.FetchExecutionForUser(ctx, executionID, userID)
	if err != nil {
		return StartResult{}, err
	}
	if exec.Status != store.ExecutionPaused {
		return StartResult{ExecutionID: executionID, Status: exec.Status}, nil
	}

	wf, err := c.store.FetchWorkflow(ctx, exec.WorkflowID, userID)
	if err != nil {
		return StartResult{}, err
	}
	nodes, edges := toEngineGraph(wf)
	sorted, err := engine.Analyze(nodes, edges)
	if err != nil {
		return StartResult{}, fmt.Errorf("analyze workflow %s: %w", exec.WorkflowID, err)
	}

	nes, err := c.store.FetchNodeExecutions(ctx, executionID)
	if err != nil {
		return StartResult{}, err
	}
	pausedIdx := findPausedNodeIndex(nes, sorted)
	if pausedIdx < 0 {
		return StartResult{ExecutionID: executionID, Status: store.ExecutionCompleted}, nil
	}

	ec := engine.ExecContext{ExecutionID: executionID, UserID: userID}
	res, err := c.runner.StepNode(ctx, ec, nodes, edges, sorted, pausedIdx)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{ExecutionID: executionID, Status: res.Status, CurrentNodeID: res.CurrentNodeID}, nil
}

// Cancel marks a running or paused execution CANCELLED. Terminal
// executions silently absorb this (store.ExecutionStatus.Terminal),
// matching the Runner's own cooperative-cancellation contract.
func (c *Controller) Cancel(ctx context.Context, executionID, userID string) (StartResult, error) {
	if _, err := c.store.FetchExecutionForUser(ctx, executionID, userID); err != nil {
		return StartResult{}, err
	}
	if err := c.store.UpdateExecution(ctx, executionID, store.ExecutionUpdate{Status: store.ExecutionCancelled}); err != nil {
		return StartResult{}, err
	}
	return StartResult{ExecutionID: executionID, Status: store.ExecutionCancelled}, nil
}

// toEngineGraph converts a store.Workflow's plain-string-typed Node/Edge
// records into the engine package's closed-NodeType representation.
func toEngineGraph(wf store.Workflow) ([]engine.Node, []engine.Edge) {
	nodes := make([]engine.Node, len(wf.Nodes))
	for i, n := range wf.Nodes {
		nodes[i] = engine.Node{
			ID:            n.ID,
			Type:          engine.NodeType(n.Type),
			Config:        engine.Values(n.Config),
			HasBreakpoint: n.HasBreakpoint,
		}
	}
	edges := make([]engine.Edge, len(wf.Edges))
	for i, e := range wf.Edges {
		edges[i] = engine.Edge{ID: e.ID, Source: e.Source, Target: e.Target}
	}
	return nodes, edges
}

// findPausedNodeIndex returns the topological index of the first node
// whose NodeExecution is PAUSED, or -1 if none is paused (the original's
// find_paused_node_index, adapted to return a sentinel instead of None).
func findPausedNodeIndex(nes []store.NodeExecution, sorted []string) int {
	paused := make(map[string]bool, len(nes))
	for _, ne := range nes {
		if ne.Status == store.NodePaused {
			paused[ne.NodeID] = true
		}
	}
	for i, id := range sorted {
		if paused[id] {
			return i
		}
	}
	return -1
}
