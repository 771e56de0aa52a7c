package embeddings

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{
		"Personal data must be retained for no longer than necessary.",
		"personal DATA must be retained, for no longer than necessary",
		"The cache invalidation job runs nightly.",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	for _, v := range vecs {
		assert.Len(t, v, 256)
		assert.InDelta(t, 1, math.Sqrt(dot(v, v)), 1e-5)
	}
	assert.InDelta(t, 1, dot(vecs[0], vecs[1]), 1e-5)
	assert.Less(t, dot(vecs[0], vecs[2]), 0.5)
}

func TestHashEmbedderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(64).Embed(ctx, []string{"text"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	e, err := New("", "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "hash", e.Name())
	assert.Equal(t, DefaultHashDimensions, e.Dimensions())

	e, err = New("openai", "", "sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, string(ModelTextEmbedding3Small), e.Name())
	assert.Equal(t, 1536, e.Dimensions())

	_, err = New("openai", "", "", "")
	assert.Error(t, err)
	_, err = New("google", "", "", "")
	assert.ErrorContains(t, err, "unsupported")
}

type emptyEmbedder struct{}

func (emptyEmbedder) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }
func (emptyEmbedder) Dimensions() int { return 0 }
func (emptyEmbedder) Name() string { return "empty" }

func TestToChromemFunc(t *testing.T) {
	fn := ToChromemFunc(NewHashEmbedder(32))
	v, err := fn(context.Background(), "retention schedule")
	require.NoError(t, err)
	assert.Len(t, v, 32)

	_, err = ToChromemFunc(emptyEmbedder{})(context.Background(), "retention schedule")
	assert.ErrorIs(t, err, ErrNoVector)
}
