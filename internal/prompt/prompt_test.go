package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/hitl/internal/clarify"
)

func TestLabel(t *testing.T) {
	q := clarify.Question{Text: "Are there performance or scale targets it must meet?"}
	assert.Equal(t, q.Text, Label(q))

	q.ContextHint = "for example requests per second"
	assert.Equal(t, "Are there performance or scale targets it must meet? (for example requests per second)", Label(q))
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.8", 0.8, false},
		{" 1 ", 1, false},
		{"0", 0, false},
		{"1.5", 0, true},
		{"-0.1", 0, true},
		{"sure", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseConfidence(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Error(t, validateConfidence(tt.in))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestValidateAnswer(t *testing.T) {
	assert.Error(t, validateAnswer("   "))
	assert.NoError(t, validateAnswer("the faster one"))
}
