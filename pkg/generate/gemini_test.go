package generate_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/Sumatoshi-tech/designmap/pkg/component"
	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/generate"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

type fakeModels struct {
	text  string
	err   error
	model string
	input string
}

func (fake *fakeModels) GenerateContent(
	_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	fake.model = model
	fake.input = contents[0].Parts[0].Text

	if fake.err != nil {
		return nil, fake.err
	}

	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: fake.text}}},
	}}}, nil
}

func record() engine.Record {
	rec := engine.Record{NodeID: "1:1", Name: "Button"}
	rec.Classification.Type = component.Button

	return rec
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	fake := &fakeModels{text: "```tsx\nexport function SendButton() {}\n```"}
	generator := generate.NewWithModels(fake, generate.Config{})

	generation, err := generator.Generate(context.Background(), record())
	require.NoError(t, err)

	assert.Equal(t, "export function SendButton() {}\n", generation.Code)
	assert.Equal(t, generate.DefaultModel, generation.Model)
	assert.Equal(t, generate.DefaultModel, fake.model)
	assert.True(t, strings.HasPrefix(fake.input, "[RECORD JSON]"))
	assert.Contains(t, fake.input, `"type": "Button"`)
}

func TestGenerate_Empty(t *testing.T) {
	t.Parallel()

	generator := generate.NewWithModels(&fakeModels{text: "   "}, generate.Config{Model: "gemini-2.5-pro"})

	_, err := generator.Generate(context.Background(), record())
	assert.ErrorIs(t, err, generate.ErrEmptyResponse)
}

func TestGenerate_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", genai.APIError{Code: http.StatusTooManyRequests}, true},
		{"unavailable", genai.APIError{Code: http.StatusServiceUnavailable}, true},
		{"bad request", genai.APIError{Code: http.StatusBadRequest}, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			generator := generate.NewWithModels(&fakeModels{err: tt.err}, generate.Config{})

			_, err := generator.Generate(context.Background(), record())
			require.Error(t, err)
			assert.Equal(t, tt.transient, pipeline.IsTransient(err))
		})
	}
}
