package executor

import (
	"context"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"adworkflow/engine"
	"adworkflow/engine/store"
)

// ImageModelExecutor generates one or more images from a prompt via an
// OpenAI-compatible image model, recording a Generation side record for
// every call (spec §3, §4.5). num_images and aspect_ratio are taken from
// config but are overridden by an ExecContext.OutputConfig supplied by a
// directly-connected OUTPUT node (spec §4.5 step 6).
type ImageModelExecutor struct {
	APIKey    string
	Model     string
	Store     store.Store
	newClient func(apiKey string) imageClient
}

// imageClient narrows the OpenAI SDK surface this executor needs, so tests
// can substitute a fake without a live API key.
type imageClient interface {
	GenerateImages(ctx context.Context, prompt string, n int, size string) ([]string, error)
}

// NewImageModelExecutor builds an executor backed by the real OpenAI API.
func NewImageModelExecutor(apiKey, modelName string, s store.Store) *ImageModelExecutor {
	if modelName == "" {
		modelName = "gpt-image-1"
	}
	return &ImageModelExecutor{
		APIKey: apiKey,
		Model:  modelName,
		Store:  s,
		newClient: func(apiKey string) imageClient {
			return &openAIImageClient{apiKey: apiKey, model: modelName}
		},
	}
}

func (e *ImageModelExecutor) Execute(ctx context.Context, inputs map[string]engine.Values, config engine.Values, ec engine.ExecContext) (engine.Values, error) {
	merged := mergeInputs(inputs)
	prompt, _ := merged["prompt"].(string)
	if prompt == "" {
		prompt, _ = config["prompt"].(string)
	}
	if prompt == "" {
		return nil, fmt.Errorf("image_model node requires a prompt from input or config")
	}

	numImages := configInt(config, "num_images", 1)
	aspectRatio := configString(config, "aspect_ratio", "1:1")

	// An OUTPUT node directly downstream overrides generation parameters.
	if ec.OutputConfig != nil {
		if n, ok := ec.OutputConfig["num_images"]; ok {
			numImages = toInt(n, numImages)
		}
		if ar, ok := ec.OutputConfig["aspect_ratio"].(string); ok && ar != "" {
			aspectRatio = ar
		}
	}
	if numImages < 1 {
		numImages = 1
	}

	client := e.newClient(e.APIKey)
	urls, err := client.GenerateImages(ctx, prompt, numImages, aspectRatioToSize(aspectRatio))
	if err != nil {
		return nil, fmt.Errorf("generate images: %w", err)
	}

	cost := float64(len(urls)) * costPerImage
	if e.Store != nil {
		gen := store.Generation{
			ExecutionID: ec.ExecutionID,
			ModelID:     e.Model,
			Prompt:      prompt,
			Parameters:  map[string]any{"num_images": numImages, "aspect_ratio": aspectRatio},
			ImageURLs:   urls,
			AspectRatio: aspectRatio,
			Cost:        cost,
			CreatedAt:   time.Now(),
		}
		if err := e.Store.CreateGeneration(ctx, gen); err != nil {
			return nil, fmt.Errorf("record generation: %w", err)
		}
	}

	imageURLs := make([]any, len(urls))
	for i, u := range urls {
		imageURLs[i] = u
	}
	return engine.Values{"image_urls": imageURLs, "cost": cost}, nil
}

// ValidateConfig reports whether config carries either a "prompt" or relies
// on an upstream prompt connection; num_images/aspect_ratio are optional.
func (*ImageModelExecutor) ValidateConfig(engine.Values) bool {
	return true
}

const costPerImage = 0.04

func aspectRatioToSize(ratio string) string {
	switch ratio {
	case "16:9":
		return "1792x1024"
	case "9:16":
		return "1024x1792"
	default:
		return "1024x1024"
	}
}

func configInt(config engine.Values, key string, fallback int) int {
	if n, ok := config[key].(int); ok {
		return n
	}
	if n, ok := config[key].(float64); ok {
		return int(n)
	}
	return fallback
}

func configString(config engine.Values, key, fallback string) string {
	if s, ok := config[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// openAIImageClient is the real imageClient backed by openai-go.
type openAIImageClient struct {
	apiKey string
	model  string
}

func (c *openAIImageClient) GenerateImages(ctx context.Context, prompt string, n int, size string) ([]string, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))
	resp, err := client.Images.Generate(ctx, openaisdk.ImageGenerateParams{
		Model:  openaisdk.ImageModel(c.model),
		Prompt: prompt,
		N:      openaisdk.Int(int64(n)),
		Size:   openaisdk.ImageGenerateParamsSize(size),
	})
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}

	urls := make([]string, 0, len(resp.Data))
	for _, img := range resp.Data {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	return urls, nil
}
