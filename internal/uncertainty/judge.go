package uncertainty

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ziadkadry99/hitl/internal/llm"
)

const judgeSystemPrompt = `You rate how uncertain an AI assistant's answer is.
Consider hedging, missing information, ambiguity and internal contradictions.
Respond with a single JSON object: {"uncertainty": <number between 0 and 1>, "reason": "<one sentence>"}.`

// ModelJudge asks a language model to rate the uncertainty of an output.
// It joins the probe ensemble so that its spread against the lexical probes
// feeds the disagreement term.
type ModelJudge struct {
	provider llm.Provider
	model    string
}

// NewModelJudge creates a judge backed by provider. model may be empty to
// use the provider default.
func NewModelJudge(provider llm.Provider, model string) *ModelJudge {
	return &ModelJudge{provider: provider, model: model}
}

func (j *ModelJudge) Name() string { return "model_judge:" + j.provider.Name() }

type judgeVerdict struct {
	Uncertainty *float64 `json:"uncertainty"`
	Reason      string   `json:"reason"`
}

func (j *ModelJudge) Estimate(ctx context.Context, in Input) (float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\n", resolvedDomain(in.Context.Domain))
	if in.Context.TaskType != "" {
		fmt.Fprintf(&b, "Task: %s\n", in.Context.TaskType)
	}
	fmt.Fprintf(&b, "Stakes: %s\n\nAnswer:\n%s\n", in.Context.Stakes, in.Output)

	resp, err := j.provider.Complete(ctx, llm.Prompt{
		Model:     j.model,
		System:    judgeSystemPrompt,
		User:      b.String(),
		MaxTokens: 200,
	})
	if err != nil {
		return 0, fmt.Errorf("judge completion: %w", err)
	}
	return parseVerdict(resp.Content)
}

// parseVerdict extracts the uncertainty rating from a reply that may wrap
// the JSON object in prose or code fences.
func parseVerdict(content string) (float64, error) {
	s := content
	if idx := strings.Index(s, "{"); idx >= 0 {
		s = s[idx:]
	}
	if idx := strings.LastIndex(s, "}"); idx >= 0 {
		s = s[:idx+1]
	}
	var v judgeVerdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return 0, fmt.Errorf("parsing judge verdict: %w", err)
	}
	if v.Uncertainty == nil {
		return 0, fmt.Errorf("judge verdict has no uncertainty field")
	}
	return Clamp(*v.Uncertainty), nil
}
