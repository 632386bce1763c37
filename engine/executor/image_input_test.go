package executor

import (
	"context"
	"testing"

	"adworkflow/engine"
)

func TestImageInputExecutor_Execute(t *testing.T) {
	e := ImageInputExecutor{}
	out, err := e.Execute(context.Background(), nil, engine.Values{"image_url": "https://example.com/a.png"}, engine.ExecContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["image_url"] != "https://example.com/a.png" {
		t.Errorf("image_url = %v", out["image_url"])
	}
}

func TestImageInputExecutor_ValidateConfig(t *testing.T) {
	e := ImageInputExecutor{}
	if !e.ValidateConfig(engine.Values{"image_url": "x"}) {
		t.Error("expected valid config to pass")
	}
	if e.ValidateConfig(engine.Values{}) {
		t.Error("expected missing image_url to fail")
	}
}

func TestMergeInputs_LastWriterWins(t *testing.T) {
	inputs := map[string]engine.Values{
		"a": {"k": "from-a", "only_a": 1},
		"b": {"k": "from-b"},
	}
	merged := mergeInputs(inputs)
	if merged["only_a"] != 1 {
		t.Errorf("expected only_a to survive, got %v", merged["only_a"])
	}
	if merged["k"] != "from-a" && merged["k"] != "from-b" {
		t.Errorf("unexpected merged k value: %v", merged["k"])
	}
}

func TestRequireString(t *testing.T) {
	if _, err := requireString(""); err == nil {
		t.Error("expected error for empty string")
	}
	if _, err := requireString(42); err == nil {
		t.Error("expected error for non-string")
	}
	s, err := requireString("ok")
	if err != nil || s != "ok" {
		t.Errorf("got %q, %v", s, err)
	}
}
