package executor

import (
	"context"
	"testing"

	"adworkflow/engine"
)

func TestPromptExecutor_SubstitutesVariables(t *testing.T) {
	e := PromptExecutor{}
	inputs := map[string]engine.Values{
		"n1": {"text": "a golden retriever"},
	}
	out, err := e.Execute(context.Background(), inputs, engine.Values{"template": "A photo of {{text}} in the park"}, engine.ExecContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "A photo of a golden retriever in the park"
	if out["prompt"] != want {
		t.Errorf("prompt = %q, want %q", out["prompt"], want)
	}
}

func TestPromptExecutor_UnknownVariableSubstitutesEmpty(t *testing.T) {
	e := PromptExecutor{}
	out, err := e.Execute(context.Background(), nil, engine.Values{"template": "Hello {{missing}}!"}, engine.ExecContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["prompt"] != "Hello !" {
		t.Errorf("prompt = %q", out["prompt"])
	}
}

func TestPromptExecutor_NoEnhancerSkipsEnhancement(t *testing.T) {
	e := PromptExecutor{}
	out, err := e.Execute(context.Background(), nil, engine.Values{"template": "base prompt", "enhance": "make it vivid"}, engine.ExecContext{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["prompt"] != "base prompt" {
		t.Errorf("prompt = %q, want unchanged base prompt", out["prompt"])
	}
}

func TestPromptExecutor_ValidateConfig(t *testing.T) {
	e := PromptExecutor{}
	if !e.ValidateConfig(engine.Values{"template": "x"}) {
		t.Error("expected valid config to pass")
	}
	if e.ValidateConfig(engine.Values{}) {
		t.Error("expected missing template to fail")
	}
}

func TestSubstituteTemplate_JoinsSliceValues(t *testing.T) {
	got := substituteTemplate("tags: {{tags}}", engine.Values{"tags": []any{"a", "b", "c"}})
	if got != "tags: a, b, c" {
		t.Errorf("got %q", got)
	}
}

func TestPromptEnhancer_RequiresAPIKey(t *testing.T) {
	p := NewPromptEnhancer("", "")
	if _, err := p.Enhance(context.Background(), "x", "y"); err == nil {
		t.Error("expected error for missing API key")
	}
}
