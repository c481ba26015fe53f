// Package enrich runs extracted articles through a hosted language model to
// classify and score them. The model is reached through a rotating pool of
// API keys so one exhausted quota does not stall the pipeline.
package enrich

import (
	"context"
	"errors"
	"fmt"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

// GenerationParams tune one model call.
type GenerationParams struct {
	Model           string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// ModelClient issues a single generation call with an explicit API key. The
// key arrives per call so the rotation layer above stays in charge of it.
type ModelClient interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// CohereClient calls the Cohere chat API.
type CohereClient struct {
	params GenerationParams
}

func NewCohereClient(params GenerationParams) *CohereClient {
	return &CohereClient{params: params}
}

func (c *CohereClient) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	client := cohereclient.NewClient(cohereclient.WithToken(apiKey))

	temperature := c.params.Temperature
	topP := c.params.TopP
	topK := c.params.TopK
	maxTokens := c.params.MaxOutputTokens

	resp, err := client.Chat(ctx, &cohere.ChatRequest{
		Message:     prompt,
		Model:       &c.params.Model,
		Temperature: &temperature,
		P:           &topP,
		K:           &topK,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("model call: %w", err)
	}
	if resp == nil {
		return "", errors.New("model returned an empty response")
	}
	return resp.Text, nil
}
