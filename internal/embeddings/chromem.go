package embeddings

import (
	"context"
	"errors"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ErrNoVector is returned when an embedder yields no vector for a text.
var ErrNoVector = errors.New("embedder returned no vector")

// ToChromemFunc adapts e to the one-text-at-a-time function chromem calls
// for documents and queries alike.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return nil, fmt.Errorf("%s: %w", e.Name(), ErrNoVector)
		}
		return vecs[0], nil
	}
}
