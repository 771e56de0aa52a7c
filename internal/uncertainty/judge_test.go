package uncertainty

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/hitl/internal/llm"
)

type stubProvider struct {
	content string
	err     error
	calls   int
	last    llm.Prompt
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, p llm.Prompt) (*llm.Reply, error) {
	s.calls++
	s.last = p
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Reply{Content: s.content}, nil
}

func TestModelJudgeEstimate(t *testing.T) {
	p := &stubProvider{content: "```json\n{\"uncertainty\": 0.72, \"reason\": \"hedged\"}\n```"}
	j := NewModelJudge(p, "")
	v, err := j.Estimate(context.Background(), Input{Output: "maybe", Context: Context{}.Normalized()})
	require.NoError(t, err)
	assert.InDelta(t, 0.72, v, 1e-9)
	assert.Equal(t, "model_judge:stub", j.Name())
	assert.Equal(t, judgeSystemPrompt, p.last.System)
	assert.Contains(t, p.last.User, "Answer:\nmaybe")
}

func TestModelJudgeBadVerdict(t *testing.T) {
	for _, content := range []string{"no json here", `{"reason": "x"}`} {
		j := NewModelJudge(&stubProvider{content: content}, "")
		_, err := j.Estimate(context.Background(), Input{Output: "x"})
		assert.Error(t, err, content)
	}
}

func TestModelJudgeErrorTriggersFallback(t *testing.T) {
	p := &stubProvider{err: errors.New("rate limited")}
	a := newTestAssessor(WithExtraProbes(NewModelJudge(p, "")))
	res := a.Assess(context.Background(), "A clear answer.", Context{Domain: DomainTechnical})
	assert.True(t, res.Fallback)
	assert.Equal(t, 1, p.calls)
}

func TestModelJudgeWidensDisagreement(t *testing.T) {
	text := "Deploy the service behind the load balancer and enable health checks on every instance today."
	plain := newTestAssessor().Assess(context.Background(), text, Context{Domain: DomainTechnical})
	judged := newTestAssessor(WithExtraProbes(NewModelJudge(&stubProvider{content: `{"uncertainty": 1}`}, ""))).
		Assess(context.Background(), text, Context{Domain: DomainTechnical})
	assert.Greater(t, judged.Epistemic, plain.Epistemic)
}
