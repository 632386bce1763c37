// Package store defines the Execution Repository contract (spec §4.4): the
// only way the execution core touches persistence. It owns nothing about
// scheduling or node dispatch — it is a narrow, storage-agnostic interface
// implemented by the memory, SQLite, and MySQL backends in this package.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a workflow or execution does not exist, or
// exists but is not owned by the requesting user. The two cases are
// intentionally indistinguishable to callers (spec §6, §7): ownership is
// the sole authorization predicate, and leaking "exists but not yours"
// would be an authorization oracle.
var ErrNotFound = errors.New("not found")

// ExecutionStatus is the lifecycle of an Execution (spec §3).
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionPaused    ExecutionStatus = "PAUSED"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether s is one of the three absorbing terminal
// statuses an Execution can end in.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// NodeExecutionStatus is the lifecycle of a single NodeExecution (spec §3).
type NodeExecutionStatus string

const (
	NodePending   NodeExecutionStatus = "PENDING"
	NodeRunning   NodeExecutionStatus = "RUNNING"
	NodePaused    NodeExecutionStatus = "PAUSED"
	NodeCompleted NodeExecutionStatus = "COMPLETED"
	NodeFailed    NodeExecutionStatus = "FAILED"
	NodeSkipped   NodeExecutionStatus = "SKIPPED"
)

// Node is a workflow node as read from persistence. Type is the raw string
// form of engine.NodeType; the store package does not depend on the engine
// package so it carries types as plain strings.
type Node struct {
	ID            string
	WorkflowID    string
	Type          string
	Name          string
	Config        map[string]any
	HasBreakpoint bool
}

// Edge is a workflow edge as read from persistence.
type Edge struct {
	ID         string
	WorkflowID string
	Source     string
	Target     string
}

// Workflow is a workflow definition together with its nodes and edges, as
// returned by FetchWorkflow.
type Workflow struct {
	ID     string
	UserID string
	Nodes  []Node
	Edges  []Edge
}

// Execution is the top-level run record (spec §3).
type Execution struct {
	ID           string
	WorkflowID   string
	Status       ExecutionStatus
	TotalCost    float64
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// NodeExecution is the per-node run record (spec §3).
type NodeExecution struct {
	ExecutionID  string
	NodeID       string
	Status       NodeExecutionStatus
	InputData    map[string]any
	OutputData   map[string]any
	ErrorMessage string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Generation is an append-only record written by the IMAGE_MODEL executor.
// The engine never reads it back (spec §3).
type Generation struct {
	ExecutionID string
	ModelID     string
	Prompt      string
	Parameters  map[string]any
	ImageURLs   []string
	AspectRatio string
	Cost        float64
	CreatedAt   time.Time
}

// ExecutionUpdate is a partial update to an Execution. Only non-nil/non-zero
// fields that were explicitly set are applied; FinishedAt is computed by the
// Store implementation, not supplied by callers, when Status becomes
// terminal (spec §4.4).
type ExecutionUpdate struct {
	Status       ExecutionStatus
	ErrorMessage *string
	TotalCost    *float64
}

// NodeExecutionUpdate is a partial update to a NodeExecution. StartedAt is
// set by the Store implementation when Status becomes Running; FinishedAt
// is set when Status becomes Completed or Failed (spec §4.4).
type NodeExecutionUpdate struct {
	Status       NodeExecutionStatus
	InputData    map[string]any
	OutputData   map[string]any
	ErrorMessage *string
}

// Store is the Execution Repository contract (spec §4.4). Every method is a
// suspension point: implementations perform network or disk I/O, and the
// Runner treats every call as a point where cancellation of the surrounding
// context may be observed (spec §5).
type Store interface {
	// FetchWorkflow returns a workflow's nodes and edges, failing with
	// ErrNotFound if it does not exist or requestingUserID does not own it.
	FetchWorkflow(ctx context.Context, workflowID, requestingUserID string) (Workflow, error)

	// CreateExecution creates a new Execution row in RUNNING status and
	// returns its ID. Callers that want a PENDING execution (deferred
	// background start) immediately follow up with UpdateExecution.
	CreateExecution(ctx context.Context, workflowID string) (executionID string, err error)

	// CreateNodeExecutions creates one PENDING NodeExecution per node in
	// orderedNodes. orderedNodes is exactly the reachable, topologically
	// sorted subgraph computed at Execution creation (spec invariant I1).
	CreateNodeExecutions(ctx context.Context, executionID string, orderedNodes []Node) error

	// UpdateExecution applies a partial update to an Execution.
	UpdateExecution(ctx context.Context, executionID string, upd ExecutionUpdate) error

	// UpdateNodeExecution applies a partial update to a NodeExecution.
	UpdateNodeExecution(ctx context.Context, executionID, nodeID string, upd NodeExecutionUpdate) error

	// FetchExecutionForUser returns an Execution, failing with ErrNotFound
	// if it does not exist or is not owned (transitively, via its
	// workflow) by userID.
	FetchExecutionForUser(ctx context.Context, executionID, userID string) (Execution, error)

	// FetchExecution returns an Execution without an ownership check. Used
	// internally by the Runner's cancellation poll, which already holds an
	// execution_id obtained from an authorized call.
	FetchExecution(ctx context.Context, executionID string) (Execution, error)

	// FetchNodeExecutions returns every NodeExecution for an Execution.
	FetchNodeExecutions(ctx context.Context, executionID string) ([]NodeExecution, error)

	// CreateGeneration appends a Generation side record. Not read back by
	// the engine (spec §3).
	CreateGeneration(ctx context.Context, g Generation) error
}
