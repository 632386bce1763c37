package executor

import (
	"context"

	"adworkflow/engine"
)

// OutputExecutor filters and caps the final image list produced upstream.
// It is the terminal node type: its output is recorded as the OUTPUT
// node's NodeExecution output_data (spec §1, §4.5); the controller's
// results do not carry it.
type OutputExecutor struct{}

func (OutputExecutor) Execute(_ context.Context, inputs map[string]engine.Values, config engine.Values, _ engine.ExecContext) (engine.Values, error) {
	merged := mergeInputs(inputs)

	var imageURLs []any
	switch v := merged["image_urls"].(type) {
	case []any:
		imageURLs = v
	case []string:
		for _, s := range v {
			imageURLs = append(imageURLs, s)
		}
	}

	numImages := len(imageURLs)
	if n, ok := config["num_images"].(int); ok {
		numImages = n
	} else if n, ok := config["num_images"].(float64); ok {
		numImages = int(n)
	}
	if numImages > len(imageURLs) {
		numImages = len(imageURLs)
	}
	if numImages < 0 {
		numImages = 0
	}

	return engine.Values{"final_images": imageURLs[:numImages]}, nil
}

// ValidateConfig always succeeds: every config field on an OUTPUT node is
// optional (spec's original output.py has the same contract).
func (OutputExecutor) ValidateConfig(engine.Values) bool {
	return true
}
