package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store implementation.
//
// Designed for:
//   - Unit and integration tests
//   - The single-process cmd/server quickstart (no external database)
//
// MemStore is thread-safe and supports concurrent access from multiple
// Execution Runner goroutines, but data is lost when the process exits —
// it is not suitable for production use across restarts.
type MemStore struct {
	mu         sync.RWMutex
	workflows  map[string]Workflow
	executions map[string]*Execution
	nodeExecs  map[string]map[string]*NodeExecution // executionID -> nodeID -> record
	execOrder  map[string][]string                   // executionID -> node IDs in creation order
	generations []Generation
}

// NewMemStore creates an empty in-memory store. SeedWorkflow should be used
// to populate workflows for tests, since MemStore has no independent
// authoring API — workflow definition is out of this engine's scope.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows:  make(map[string]Workflow),
		executions: make(map[string]*Execution),
		nodeExecs:  make(map[string]map[string]*NodeExecution),
		execOrder:  make(map[string][]string),
	}
}

// SeedWorkflow registers a workflow for FetchWorkflow to return. This is a
// test/quickstart seam, not part of the Store interface: workflow authoring
// is an external collaborator (spec §1).
func (m *MemStore) SeedWorkflow(wf Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = wf
}

func (m *MemStore) FetchWorkflow(_ context.Context, workflowID, requestingUserID string) (Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[workflowID]
	if !ok || wf.UserID != requestingUserID {
		return Workflow{}, ErrNotFound
	}
	return wf, nil
}

func (m *MemStore) CreateExecution(_ context.Context, workflowID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	now := time.Now().UTC()
	m.executions[id] = &Execution{
		ID:         id,
		WorkflowID: workflowID,
		Status:     ExecutionRunning,
		StartedAt:  now,
	}
	m.nodeExecs[id] = make(map[string]*NodeExecution)
	return id, nil
}

func (m *MemStore) CreateNodeExecutions(_ context.Context, executionID string, orderedNodes []Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executions[executionID]; !ok {
		return ErrNotFound
	}
	ids := make([]string, 0, len(orderedNodes))
	for _, n := range orderedNodes {
		m.nodeExecs[executionID][n.ID] = &NodeExecution{
			ExecutionID: executionID,
			NodeID:      n.ID,
			Status:      NodePending,
		}
		ids = append(ids, n.ID)
	}
	m.execOrder[executionID] = ids
	return nil
}

func (m *MemStore) UpdateExecution(_ context.Context, executionID string, upd ExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exec, ok := m.executions[executionID]
	if !ok {
		return ErrNotFound
	}
	// Terminal statuses are absorbing: a later write (e.g. a Runner that
	// hadn't yet observed a concurrent cancel) must not undo CANCELLED.
	if exec.Status.Terminal() && exec.Status != upd.Status {
		return nil
	}

	exec.Status = upd.Status
	if upd.ErrorMessage != nil {
		exec.ErrorMessage = *upd.ErrorMessage
	}
	if upd.TotalCost != nil {
		exec.TotalCost = *upd.TotalCost
	}
	if upd.Status.Terminal() {
		now := time.Now().UTC()
		exec.FinishedAt = &now
	}
	return nil
}

func (m *MemStore) UpdateNodeExecution(_ context.Context, executionID, nodeID string, upd NodeExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	execs, ok := m.nodeExecs[executionID]
	if !ok {
		return ErrNotFound
	}
	ne, ok := execs[nodeID]
	if !ok {
		return fmt.Errorf("%w: node execution %s/%s", ErrNotFound, executionID, nodeID)
	}

	ne.Status = upd.Status
	if upd.InputData != nil {
		ne.InputData = upd.InputData
	}
	if upd.OutputData != nil {
		ne.OutputData = upd.OutputData
	}
	if upd.ErrorMessage != nil {
		ne.ErrorMessage = *upd.ErrorMessage
	}
	now := time.Now().UTC()
	if upd.Status == NodeRunning {
		ne.StartedAt = &now
	}
	if upd.Status == NodeCompleted || upd.Status == NodeFailed {
		ne.FinishedAt = &now
	}
	return nil
}

func (m *MemStore) FetchExecutionForUser(_ context.Context, executionID, userID string) (Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.executions[executionID]
	if !ok {
		return Execution{}, ErrNotFound
	}
	wf, ok := m.workflows[exec.WorkflowID]
	if !ok || wf.UserID != userID {
		return Execution{}, ErrNotFound
	}
	return *exec, nil
}

func (m *MemStore) FetchExecution(_ context.Context, executionID string) (Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.executions[executionID]
	if !ok {
		return Execution{}, ErrNotFound
	}
	return *exec, nil
}

func (m *MemStore) FetchNodeExecutions(_ context.Context, executionID string) ([]NodeExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	execs, ok := m.nodeExecs[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	ids := m.execOrder[executionID]
	out := make([]NodeExecution, 0, len(ids))
	for _, id := range ids {
		out = append(out, *execs[id])
	}
	return out, nil
}

func (m *MemStore) CreateGeneration(_ context.Context, g Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.CreatedAt = time.Now().UTC()
	m.generations = append(m.generations, g)
	return nil
}
