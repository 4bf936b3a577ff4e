package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Embedder maps arbitrary text to a fixed-dimension numeric vector via a
// hosted embedding model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// OpenAIEmbedding calls the embeddings endpoint of any OpenAI-compatible
// server.
type OpenAIEmbedding struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedding(baseURL, apiKey, model string, dimension int) *OpenAIEmbedding {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIEmbedding{
		client:    openai.NewClientWithConfig(config),
		model:     model,
		dimension: dimension,
	}
}

func (e *OpenAIEmbedding) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}
	vector := resp.Data[0].Embedding
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vector), e.dimension)
	}
	return vector, nil
}
