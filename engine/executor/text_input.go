// Package executor implements the Executor capability for each NodeType
// (spec §4.2): the leaf logic a workflow node actually runs, as opposed to
// the scheduling and persistence that surrounds it in package engine.
package executor

import (
	"context"

	"adworkflow/engine"
)

// TextInputExecutor outputs a literal text value from node config. It has
// no inputs and no side effects.
type TextInputExecutor struct{}

func (TextInputExecutor) Execute(_ context.Context, _ map[string]engine.Values, config engine.Values, _ engine.ExecContext) (engine.Values, error) {
	value, _ := config["value"].(string)
	return engine.Values{"text": value}, nil
}

// ValidateConfig reports whether config carries the required "value" key.
func (TextInputExecutor) ValidateConfig(config engine.Values) bool {
	_, ok := config["value"]
	return ok
}
