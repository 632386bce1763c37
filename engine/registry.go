package engine

import "context"

// ExecContext carries the metadata an Executor needs beyond its inputs and
// config: which execution and user it is running under, and — for
// IMAGE_MODEL nodes — the config of a downstream OUTPUT node, if one is
// directly connected (spec §4.2, §4.5 step 6).
type ExecContext struct {
	ExecutionID  string
	UserID       string
	OutputConfig Values
}

// Executor is the capability a node type must provide to be runnable. Each
// node type maps to exactly one Executor value object; there is no
// inheritance hierarchy, only this single-method capability plus optional
// config validation (spec §4.2, §9).
type Executor interface {
	// Execute runs the node's logic. inputs is keyed by source node ID;
	// ValidateConfig is not called implicitly by the engine, it exists for
	// executors/authoring tools to pre-flight a node's config.
	Execute(ctx context.Context, inputs map[string]Values, config Values, ec ExecContext) (Values, error)
}

// ValidatingExecutor is implemented by executors that can pre-flight their
// node configuration independent of a run. It is optional: Dispatch never
// requires it.
type ValidatingExecutor interface {
	ValidateConfig(config Values) bool
}

// Registry maps a NodeType to the Executor that runs it.
type Registry struct {
	executors map[NodeType]Executor
}

// NewRegistry returns an empty Registry. Use Register to populate it.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[NodeType]Executor)}
}

// Register binds a NodeType to the Executor that will run its nodes.
// Registering the same type twice replaces the previous binding.
func (r *Registry) Register(t NodeType, e Executor) {
	r.executors[t] = e
}

// Dispatch runs a single node via its registered Executor. It fails with
// UnknownNodeTypeError if node.Type has no registration.
func (r *Registry) Dispatch(ctx context.Context, node Node, inputs map[string]Values, ec ExecContext) (Values, error) {
	exec, ok := r.executors[node.Type]
	if !ok {
		return nil, &UnknownNodeTypeError{NodeID: node.ID, Type: node.Type}
	}
	out, err := exec.Execute(ctx, inputs, node.Config, ec)
	if err != nil {
		return nil, &ExecutorError{NodeID: node.ID, Cause: err}
	}
	return out, nil
}
