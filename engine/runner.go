package engine

import (
	"context"
	"fmt"
	"time"

	"adworkflow/engine/emit"
	"adworkflow/engine/store"
)

// Result is the outcome of a Run or StepNode call: the Execution's status
// after the loop stopped, and — for PAUSED and FAILED — which node it
// stopped at.
type Result struct {
	ExecutionID   string
	Status        store.ExecutionStatus
	CurrentNodeID string
	ErrorMessage  string
}

// Runner is the Execution Runner (spec §4.5): the scheduler that walks a
// topologically sorted node list, dispatching each node to its Executor and
// persisting status as it goes. A Runner holds no per-call state — every
// method takes the full schedule and a starting index, so Run and StepNode
// can share the same node-execution helper.
type Runner struct {
	registry *Registry
	store    store.Store
	emitter  emit.Emitter
	metrics  *Metrics
}

// NewRunner wires a Registry, a Store, and an Emitter into a Runner. emitter
// may be emit.NewNullEmitter() if no observability is wanted.
func NewRunner(registry *Registry, s store.Store, emitter emit.Emitter) *Runner {
	return &Runner{registry: registry, store: s, emitter: emitter}
}

// WithMetrics attaches a Prometheus Metrics collector to r, returning r for
// chaining. A Runner with no Metrics attached (the NewRunner default)
// simply skips recording — every Metrics method is nil-receiver safe.
func (r *Runner) WithMetrics(m *Metrics) *Runner {
	r.metrics = m
	return r
}

// Run executes sorted[startIndex:] in order, marking the Execution RUNNING
// and then persisting its COMPLETED/PAUSED/FAILED outcome, or stopping on an
// observed CANCELLED (spec §4.5, §5).
// It is the single entry point for both a fresh execution (startIndex 0)
// and a background resume after step/prepare (startIndex > 0).
//
// Before and after every node, Run polls the Store for the Execution's
// current status; a concurrently recorded CANCELLED stops the loop at the
// next poll. The in-flight node is not interrupted (it has no cancellation
// hook of its own — spec §5's cooperative, poll-based cancellation model):
// it runs to completion, and no further node is started.
func (r *Runner) Run(ctx context.Context, ec ExecContext, nodes []Node, edges []Edge, sorted []string, startIndex int, pauseOnBreakpoints bool) (Result, error) {
	nodeMap := indexNodes(nodes)

	outputs, totalCost, err := r.loadPreviousOutputs(ctx, ec.ExecutionID)
	if err != nil {
		return Result{}, fmt.Errorf("load previous outputs: %w", err)
	}

	if err := r.store.UpdateExecution(ctx, ec.ExecutionID, store.ExecutionUpdate{Status: store.ExecutionRunning}); err != nil {
		return Result{}, fmt.Errorf("update execution running: %w", err)
	}

	var currentNodeID string
	for idx := startIndex; idx < len(sorted); idx++ {
		if res, cancelled, err := r.maybeCancel(ctx, ec.ExecutionID); err != nil {
			return Result{}, err
		} else if cancelled {
			return res, nil
		}

		nodeID := sorted[idx]
		node, ok := nodeMap[nodeID]
		if !ok {
			return r.handleFailure(ctx, ec.ExecutionID, nodeID, fmt.Errorf("node %s not in schedule", nodeID))
		}
		currentNodeID = nodeID

		if pauseOnBreakpoints && node.HasBreakpoint {
			return r.pauseAt(ctx, ec.ExecutionID, nodeID)
		}

		newOutputs, cost, res, done, err := r.runNode(ctx, ec, node, nodeMap, edges, outputs)
		if err != nil {
			return r.handleFailure(ctx, ec.ExecutionID, nodeID, err)
		}
		if done {
			return res, nil
		}
		outputs = newOutputs
		totalCost += cost
	}

	if res, cancelled, err := r.maybeCancel(ctx, ec.ExecutionID); err != nil {
		return Result{}, err
	} else if cancelled {
		return res, nil
	}

	if err := r.store.UpdateExecution(ctx, ec.ExecutionID, store.ExecutionUpdate{
		Status:    store.ExecutionCompleted,
		TotalCost: &totalCost,
	}); err != nil {
		return Result{}, fmt.Errorf("update execution completed: %w", err)
	}
	r.emitter.Emit(emit.Event{ExecutionID: ec.ExecutionID, Msg: "execution_completed", Meta: map[string]any{"cost": totalCost}})
	r.metrics.RecordExecutionCost(totalCost)
	_ = currentNodeID
	return Result{ExecutionID: ec.ExecutionID, Status: store.ExecutionCompleted}, nil
}

// StepNode executes exactly sorted[startIndex] and then pauses at the next
// node (or completes, if startIndex was the last). It is the single-step
// entry point used by the Debug Controller's step operation (spec §4.5,
// §4.6): the only difference from Run with pauseOnBreakpoints=false is that
// it stops after one node instead of continuing to the end.
//
// Open question resolved (spec §9): stepping the node at startIndex always
// executes it even if it carries a breakpoint — a breakpoint only pauses
// the scheduler the first time Run reaches it, not on an explicit step.
func (r *Runner) StepNode(ctx context.Context, ec ExecContext, nodes []Node, edges []Edge, sorted []string, startIndex int) (Result, error) {
	nodeMap := indexNodes(nodes)

	outputs, totalCost, err := r.loadPreviousOutputs(ctx, ec.ExecutionID)
	if err != nil {
		return Result{}, fmt.Errorf("load previous outputs: %w", err)
	}

	nodeID := sorted[startIndex]
	node, ok := nodeMap[nodeID]
	if !ok {
		return r.handleFailure(ctx, ec.ExecutionID, nodeID, fmt.Errorf("node %s not in schedule", nodeID))
	}

	if res, cancelled, err := r.maybeCancel(ctx, ec.ExecutionID); err != nil {
		return Result{}, err
	} else if cancelled {
		return res, nil
	}

	if err := r.store.UpdateExecution(ctx, ec.ExecutionID, store.ExecutionUpdate{Status: store.ExecutionRunning}); err != nil {
		return Result{}, fmt.Errorf("update execution running: %w", err)
	}

	newOutputs, cost, res, done, err := r.runNode(ctx, ec, node, nodeMap, edges, outputs)
	if err != nil {
		return r.handleFailure(ctx, ec.ExecutionID, nodeID, err)
	}
	if done {
		return res, nil
	}
	outputs = newOutputs
	totalCost += cost

	if res, cancelled, err := r.maybeCancel(ctx, ec.ExecutionID); err != nil {
		return Result{}, err
	} else if cancelled {
		return res, nil
	}

	nextIndex := startIndex + 1
	if nextIndex >= len(sorted) {
		if res, cancelled, err := r.maybeCancel(ctx, ec.ExecutionID); err != nil {
			return Result{}, err
		} else if cancelled {
			return res, nil
		}
		if err := r.store.UpdateExecution(ctx, ec.ExecutionID, store.ExecutionUpdate{
			Status:    store.ExecutionCompleted,
			TotalCost: &totalCost,
		}); err != nil {
			return Result{}, fmt.Errorf("update execution completed: %w", err)
		}
		r.emitter.Emit(emit.Event{ExecutionID: ec.ExecutionID, Msg: "execution_completed", Meta: map[string]any{"cost": totalCost}})
		r.metrics.RecordExecutionCost(totalCost)
		return Result{ExecutionID: ec.ExecutionID, Status: store.ExecutionCompleted}, nil
	}

	return r.pauseAt(ctx, ec.ExecutionID, sorted[nextIndex])
}

// runNode executes a single node: gather inputs, mark RUNNING, dispatch,
// mark COMPLETED. It returns the updated outputs map and the node's cost
// contribution. done is always false: a missing NodeExecution, like any
// other Store or dispatch failure, comes back as an error, which the callers
// record as a node failure.
func (r *Runner) runNode(ctx context.Context, ec ExecContext, node Node, nodesByID map[string]Node, edges []Edge, outputs map[string]Values) (map[string]Values, float64, Result, bool, error) {
	inputs := GatherInputs(node.ID, edges, outputs)

	if err := r.store.UpdateNodeExecution(ctx, ec.ExecutionID, node.ID, store.NodeExecutionUpdate{
		Status:    store.NodeRunning,
		InputData: valuesMapToAny(inputs),
	}); err != nil {
		return nil, 0, Result{}, false, fmt.Errorf("mark node running: %w", err)
	}
	r.emitter.Emit(emit.Event{ExecutionID: ec.ExecutionID, NodeID: node.ID, Msg: "node_start"})

	nodeEC := ec
	if node.Type == ImageModel {
		nodeEC.OutputConfig = outputConfigFor(node.ID, nodesByID, edges)
	}

	dispatchStart := time.Now()
	output, err := r.registry.Dispatch(ctx, node, inputs, nodeEC)
	if err != nil {
		r.metrics.RecordNodeLatency(node.Type, "error", time.Since(dispatchStart))
		r.metrics.IncrementNodeFailures(node.Type)
		return nil, 0, Result{}, false, err
	}
	r.metrics.RecordNodeLatency(node.Type, "success", time.Since(dispatchStart))

	if err := r.store.UpdateNodeExecution(ctx, ec.ExecutionID, node.ID, store.NodeExecutionUpdate{
		Status:     store.NodeCompleted,
		OutputData: output,
	}); err != nil {
		return nil, 0, Result{}, false, fmt.Errorf("mark node completed: %w", err)
	}

	cost := 0.0
	if c, ok := output["cost"].(float64); ok {
		cost = c
	}
	r.emitter.Emit(emit.Event{ExecutionID: ec.ExecutionID, NodeID: node.ID, Msg: "node_complete", Meta: map[string]any{"cost": cost}})

	next := make(map[string]Values, len(outputs)+1)
	for k, v := range outputs {
		next[k] = v
	}
	next[node.ID] = output
	return next, cost, Result{}, false, nil
}

// pauseAt persists a PAUSED NodeExecution and a PAUSED Execution, the
// terminal state of a Run call that stopped at a breakpoint rather than
// finishing the schedule.
func (r *Runner) pauseAt(ctx context.Context, executionID, nodeID string) (Result, error) {
	if err := r.store.UpdateNodeExecution(ctx, executionID, nodeID, store.NodeExecutionUpdate{Status: store.NodePaused}); err != nil {
		return Result{}, fmt.Errorf("mark node paused: %w", err)
	}
	if err := r.store.UpdateExecution(ctx, executionID, store.ExecutionUpdate{Status: store.ExecutionPaused}); err != nil {
		return Result{}, fmt.Errorf("update execution paused: %w", err)
	}
	r.emitter.Emit(emit.Event{ExecutionID: executionID, NodeID: nodeID, Msg: "execution_paused"})
	return Result{ExecutionID: executionID, Status: store.ExecutionPaused, CurrentNodeID: nodeID}, nil
}

// handleFailure persists a FAILED NodeExecution (if a node was in flight)
// and a FAILED Execution, then returns a non-error Result: a node failure
// is an expected, recorded outcome, not a Runner-internal error. The only
// errors Run/StepNode return to their caller are failures to reach the
// Store itself.
func (r *Runner) handleFailure(ctx context.Context, executionID, nodeID string, cause error) (Result, error) {
	msg := cause.Error()
	if nodeID != "" {
		if err := r.store.UpdateNodeExecution(ctx, executionID, nodeID, store.NodeExecutionUpdate{
			Status:       store.NodeFailed,
			ErrorMessage: &msg,
		}); err != nil {
			return Result{}, fmt.Errorf("mark node failed: %w", err)
		}
	}
	if err := r.store.UpdateExecution(ctx, executionID, store.ExecutionUpdate{
		Status:       store.ExecutionFailed,
		ErrorMessage: &msg,
	}); err != nil {
		return Result{}, fmt.Errorf("update execution failed: %w", err)
	}
	r.emitter.Emit(emit.Event{ExecutionID: executionID, NodeID: nodeID, Msg: "node_failed", Meta: map[string]any{"error": msg}})
	return Result{ExecutionID: executionID, Status: store.ExecutionFailed, CurrentNodeID: nodeID, ErrorMessage: msg}, nil
}

// maybeCancel polls the Execution's persisted status and, if it has already
// been recorded as CANCELLED by a concurrent cancel request, returns a
// Result reflecting that instead of letting the loop continue (spec §5).
func (r *Runner) maybeCancel(ctx context.Context, executionID string) (Result, bool, error) {
	exec, err := r.store.FetchExecution(ctx, executionID)
	if err != nil {
		return Result{}, false, fmt.Errorf("fetch execution: %w", err)
	}
	if exec.Status == store.ExecutionCancelled {
		return Result{ExecutionID: executionID, Status: store.ExecutionCancelled}, true, nil
	}
	return Result{}, false, nil
}

// loadPreviousOutputs rebuilds the outputs map and running cost total from
// already-COMPLETED NodeExecutions, so a resumed Run (after a step or a
// process restart) doesn't re-execute or lose the cost of earlier nodes.
func (r *Runner) loadPreviousOutputs(ctx context.Context, executionID string) (map[string]Values, float64, error) {
	nes, err := r.store.FetchNodeExecutions(ctx, executionID)
	if err != nil {
		return nil, 0, err
	}
	outputs := make(map[string]Values, len(nes))
	total := 0.0
	for _, ne := range nes {
		if ne.OutputData == nil {
			continue
		}
		outputs[ne.NodeID] = ne.OutputData
		if c, ok := ne.OutputData["cost"].(float64); ok {
			total += c
		}
	}
	return outputs, total, nil
}

func indexNodes(nodes []Node) map[string]Node {
	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

func valuesMapToAny(inputs map[string]Values) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = map[string]any(v)
	}
	return out
}

// outputConfigFor finds the config of an OUTPUT node directly downstream of
// imageNodeID, if any (spec §4.5 step 6: an IMAGE_MODEL node's generation
// parameters can be overridden by a connected OUTPUT node's config).
func outputConfigFor(imageNodeID string, nodesByID map[string]Node, edges []Edge) Values {
	for _, e := range edges {
		if e.Source != imageNodeID {
			continue
		}
		target, ok := nodesByID[e.Target]
		if ok && target.Type == Output {
			return target.Config
		}
	}
	return nil
}
