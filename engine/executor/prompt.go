package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"adworkflow/engine"
)

var templateVarPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// PromptExecutor substitutes {{variable}} placeholders in a template string
// with values gathered from connected nodes, optionally rewriting the
// result through Claude first if an enhancement instruction is configured.
type PromptExecutor struct {
	// Enhancer is used when config["enhance"] is set; nil disables
	// enhancement entirely (a zero-value PromptExecutor just substitutes).
	Enhancer *PromptEnhancer
}

func (p PromptExecutor) Execute(ctx context.Context, inputs map[string]engine.Values, config engine.Values, _ engine.ExecContext) (engine.Values, error) {
	template, _ := config["template"].(string)
	merged := mergeInputs(inputs)
	prompt := substituteTemplate(template, merged)

	if instruction, ok := config["enhance"].(string); ok && instruction != "" && p.Enhancer != nil {
		enhanced, err := p.Enhancer.Enhance(ctx, prompt, instruction)
		if err != nil {
			return nil, fmt.Errorf("enhance prompt: %w", err)
		}
		prompt = enhanced
	}

	return engine.Values{"prompt": prompt}, nil
}

// ValidateConfig reports whether config carries the required "template" key.
func (PromptExecutor) ValidateConfig(config engine.Values) bool {
	_, ok := config["template"]
	return ok
}

// substituteTemplate replaces every {{name}} placeholder with the string
// form of variables[name], joining slice values with ", ". Unknown
// variables substitute to an empty string rather than erroring — a
// workflow author referencing a variable that never arrives (e.g. an
// optional upstream branch) gets a blank, not a failed run.
func substituteTemplate(template string, variables engine.Values) string {
	return templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		value, ok := variables[name]
		if !ok {
			return ""
		}
		return stringifyTemplateValue(value)
	})
}

func stringifyTemplateValue(value any) string {
	switch v := value.(type) {
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// PromptEnhancer rewrites a generated prompt through Claude according to a
// free-form instruction (e.g. "make this more vivid and cinematic"). It is
// a thin wrapper so PromptExecutor can be tested without a live API key.
type PromptEnhancer struct {
	apiKey string
	model  string
}

// NewPromptEnhancer returns a PromptEnhancer using the given API key.
// modelName defaults to a current Claude model when empty.
func NewPromptEnhancer(apiKey, modelName string) *PromptEnhancer {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	return &PromptEnhancer{apiKey: apiKey, model: modelName}
}

// Enhance sends prompt and instruction to Claude and returns the rewritten
// prompt text.
func (p *PromptEnhancer) Enhance(ctx context.Context, prompt, instruction string) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(p.apiKey))
	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: "Rewrite the given image-generation prompt per the instruction. Respond with only the rewritten prompt."},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf("Instruction: %s\n\nPrompt: %s", instruction, prompt))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	if out.Len() == 0 {
		return prompt, nil
	}
	return out.String(), nil
}
