package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier(DefaultTriggers())
	tests := []struct {
		text string
		want uncertainty.Domain
	}{
		{"I'm not sure which approach is better", uncertainty.DomainConversational},
		{"Can you recommend a movie for tonight?", uncertainty.DomainConversational},
		{"The API endpoint throws an exception on every build.", uncertainty.DomainTechnical},
		{"Under GDPR the privacy policy must record consent.", uncertainty.DomainCompliance},
		{"Does our data retention schedule satisfy HIPAA?", uncertainty.DomainCompliance},
	}
	for _, tt := range tests {
		d, err := c.Classify(context.Background(), tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, d.Domain, tt.text)
	}
}

func TestKeywordClassifierTiePrefersStricterDomain(t *testing.T) {
	c := NewKeywordClassifier(DefaultTriggers())
	d, err := c.Classify(context.Background(), "Please audit this code.")
	require.NoError(t, err)
	assert.Equal(t, uncertainty.DomainCompliance, d.Domain)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
	require.Len(t, d.Candidates, 2)
}

func TestKeywordClassifierMatchesWholeWords(t *testing.T) {
	c := NewKeywordClassifier(Triggers{Technical: []string{"api"}})
	d, err := c.Classify(context.Background(), "The rapid capybara naps.")
	require.NoError(t, err)
	assert.Equal(t, uncertainty.DomainConversational, d.Domain)
	assert.Empty(t, d.Candidates)
}

func TestKeywordClassifierHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewKeywordClassifier(DefaultTriggers()).Classify(ctx, "anything")
	assert.Error(t, err)
}
