package executor

import (
	"context"
	"fmt"

	"adworkflow/engine"
)

// ImageInputExecutor outputs a literal image URL from node config.
type ImageInputExecutor struct{}

func (ImageInputExecutor) Execute(_ context.Context, _ map[string]engine.Values, config engine.Values, _ engine.ExecContext) (engine.Values, error) {
	url, _ := config["image_url"].(string)
	return engine.Values{"image_url": url}, nil
}

// ValidateConfig reports whether config carries the required "image_url" key.
func (ImageInputExecutor) ValidateConfig(config engine.Values) bool {
	_, ok := config["image_url"]
	return ok
}

// mergeInputs flattens a fan-in bundle into one map, last writer (by map
// iteration) wins — used by executors that don't care which predecessor
// produced which key. Map iteration order is not fixed, so a key produced
// by several predecessors resolves to any one of their values.
// engine.MergeInputs, which breaks ties by topological position, is not
// used by the executors in this package.
func mergeInputs(inputs map[string]engine.Values) engine.Values {
	merged := make(engine.Values)
	for _, v := range inputs {
		for k, val := range v {
			merged[k] = val
		}
	}
	return merged
}

func requireString(v any) (string, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("expected non-empty string, got %T", v)
	}
	return s, nil
}
