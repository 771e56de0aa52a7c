// Package llm talks to the language models behind the model judge.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyReply is returned when a model answers with no content.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Provider answers judging prompts.
type Provider interface {
	Complete(ctx context.Context, p Prompt) (*Reply, error)
	Name() string
}
