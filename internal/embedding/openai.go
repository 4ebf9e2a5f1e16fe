package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultModel is the default OpenAI embedding model.
const DefaultModel = "text-embedding-3-small"

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAI embeds text through the OpenAI embeddings API.
type OpenAI struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAI creates an OpenAI embedding provider. An empty model selects
// DefaultModel and an empty baseURL selects the public API.
func NewOpenAI(apiKey, model, baseURL string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	dimensions, ok := modelDimensions[model]
	if !ok {
		dimensions = DefaultDimensions
	}

	return &OpenAI{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed implements Provider.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}

	return resp.Data[0].Embedding, nil
}

// Dimensions implements Provider.
func (o *OpenAI) Dimensions() int {
	return o.dimensions
}

// Model implements Provider.
func (o *OpenAI) Model() string {
	return o.model
}
