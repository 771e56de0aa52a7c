// Package embeddings turns text into vectors for the knowledge base.
package embeddings

import (
	"context"
	"fmt"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// New creates the embedder named by provider. "hash" (the default) runs
// locally; "openai" needs an API key.
func New(provider, model, apiKey, baseURL string) (Embedder, error) {
	switch provider {
	case "", "hash":
		return NewHashEmbedder(DefaultHashDimensions), nil
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai embeddings need an API key")
		}
		m := OpenAIModel(model)
		if m == "" {
			m = ModelTextEmbedding3Small
		}
		return NewOpenAIEmbedder(apiKey, m, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
