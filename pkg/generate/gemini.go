// Package generate adapts the Gemini API to the pipeline's Generator
// boundary: one analyzed component record in, component source code out.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// ErrEmptyResponse is returned when the model produces no text.
var ErrEmptyResponse = errors.New("model returned no content")

// Instruction is the fixed system prompt sent with every record.
const Instruction = `You translate analyzed design components into React + TypeScript using
shadcn/ui primitives. The input JSON is a complete record: the component type
with its confidence, extracted text, icons (a null icon name means a
placeholder, render nothing), variant, size, state, boolean flags, and the
child-to-slot mapping. Values whose source is "inferred" are guesses; prefer
verbatim values. Reply with a single TSX module and no prose.`

// Config configures the Gemini generator.
type Config struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
}

// ContentGenerator is the part of the genai client the generator uses.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Gemini implements pipeline.Generator.
type Gemini struct {
	models ContentGenerator
	model  string
	config *genai.GenerateContentConfig
}

// NewGemini creates a generator backed by the Gemini API. An empty API key
// lets the client read GEMINI_API_KEY or GOOGLE_API_KEY from the environment.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return NewWithModels(client.Models, cfg), nil
}

// NewWithModels creates a generator over an existing content generator.
func NewWithModels(models ContentGenerator, cfg Config) *Gemini {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	temperature := cfg.Temperature

	return &Gemini{
		models: models,
		model:  model,
		config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: Instruction}}},
			Temperature:       &temperature,
		},
	}
}

// Generate implements pipeline.Generator.
func (generator *Gemini) Generate(ctx context.Context, record engine.Record) (pipeline.Generation, error) {
	input, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return pipeline.Generation{}, fmt.Errorf("marshal record: %w", err)
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: "[RECORD JSON]\n" + string(input)}},
	}}

	resp, err := generator.models.GenerateContent(ctx, generator.model, contents, generator.config)
	if err != nil {
		return pipeline.Generation{}, classify(err)
	}

	text := responseText(resp)
	if text == "" {
		return pipeline.Generation{}, ErrEmptyResponse
	}

	return pipeline.Generation{Code: stripFences(text), Model: generator.model}, nil
}

// classify marks rate limiting, server errors, and network failures as transient.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return classifyStatus(apiErrPtr.Code, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return pipeline.Transient(err)
	}

	return fmt.Errorf("generate content: %w", err)
}

func classifyStatus(code int, err error) error {
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError {
		return pipeline.Transient(err)
	}

	return fmt.Errorf("generate content: %w", err)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var text strings.Builder

	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(text.String())
}

// stripFences removes a surrounding markdown code fence.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	_, body, found := strings.Cut(text, "\n")
	if !found {
		return text
	}

	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")

	return strings.TrimSpace(body) + "\n"
}
