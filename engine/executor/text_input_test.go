package executor

import (
	"context"
	"testing"

	"adworkflow/engine"
)

func TestTextInputExecutor_Execute(t *testing.T) {
	e := TextInputExecutor{}
	out, err := e.Execute(context.Background(), nil, engine.Values{"value": "hello world"}, engine.ExecContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["text"] != "hello world" {
		t.Errorf("text = %v, want %q", out["text"], "hello world")
	}
}

func TestTextInputExecutor_ValidateConfig(t *testing.T) {
	e := TextInputExecutor{}
	if !e.ValidateConfig(engine.Values{"value": "x"}) {
		t.Error("expected valid config to pass")
	}
	if e.ValidateConfig(engine.Values{}) {
		t.Error("expected missing value to fail")
	}
}
