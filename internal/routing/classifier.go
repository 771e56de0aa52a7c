package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Triggers lists the keywords that vote for each domain.
type Triggers struct {
	Conversational []string `yaml:"conversational" koanf:"conversational" json:"conversational"`
	Technical      []string `yaml:"technical" koanf:"technical" json:"technical"`
	Compliance     []string `yaml:"compliance" koanf:"compliance" json:"compliance"`
}

// DefaultTriggers returns the stock keyword tables.
func DefaultTriggers() Triggers {
	return Triggers{
		Conversational: []string{
			"recommend", "suggestion", "opinion", "prefer", "favorite", "feel",
			"chat", "gift", "recipe", "movie", "vacation",
		},
		Technical: []string{
			"code", "function", "api", "bug", "error", "exception", "database",
			"deploy", "deployment", "server", "algorithm", "compile", "library",
			"endpoint", "query", "latency", "performance", "architecture",
			"stack trace", "kubernetes", "docker", "config", "schema", "sql",
			"thread", "mutex", "cache", "build",
		},
		Compliance: []string{
			"compliance", "compliant", "regulation", "regulatory", "gdpr",
			"hipaa", "sox", "pci", "audit", "legal", "law", "policy", "contract",
			"privacy", "consent", "liability", "data retention", "kyc", "aml",
			"personal data",
		},
	}
}

// Decision is the outcome of classifying an output.
type Decision struct {
	Domain     uncertainty.Domain `json:"domain"`
	Confidence float64            `json:"confidence"`
	Candidates []Candidate        `json:"candidates,omitempty"`
	Reasons    []string           `json:"reasons,omitempty"`
}

// Candidate is one domain that matched at least one trigger.
type Candidate struct {
	Domain   uncertainty.Domain `json:"domain"`
	Score    int                `json:"score"`
	Triggers []string           `json:"triggers"`
}

// DomainClassifier infers the domain of an output when the caller left it
// unset.
type DomainClassifier interface {
	Classify(ctx context.Context, text string) (Decision, error)
}

// KeywordClassifier scores domains by trigger matches.
type KeywordClassifier struct {
	triggers Triggers
}

// NewKeywordClassifier creates a classifier over the given trigger tables.
func NewKeywordClassifier(t Triggers) *KeywordClassifier {
	return &KeywordClassifier{triggers: t}
}

// Classify picks the domain with the most trigger matches. Ties resolve
// toward the stricter domain; no match resolves to conversational.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	joined := " " + strings.Join(uncertainty.Tokenize(text), " ") + " "

	tables := []struct {
		domain   uncertainty.Domain
		triggers []string
	}{
		{uncertainty.DomainCompliance, c.triggers.Compliance},
		{uncertainty.DomainTechnical, c.triggers.Technical},
		{uncertainty.DomainConversational, c.triggers.Conversational},
	}

	var candidates []Candidate
	var total int
	for _, t := range tables {
		var matched []string
		for _, trig := range t.triggers {
			if containsTrigger(joined, trig) {
				matched = append(matched, trig)
			}
		}
		if len(matched) == 0 {
			continue
		}
		total += len(matched)
		candidates = append(candidates, Candidate{Domain: t.domain, Score: len(matched), Triggers: matched})
	}

	if len(candidates) == 0 {
		return Decision{
			Domain:  uncertainty.DomainConversational,
			Reasons: []string{"no triggers matched; using conversational"},
		}, nil
	}

	// Stable sort keeps the stricter domain first on equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	top := candidates[0]
	return Decision{
		Domain:     top.Domain,
		Confidence: float64(top.Score) / float64(total),
		Candidates: candidates,
		Reasons:    []string{fmt.Sprintf("matched %s", strings.Join(top.Triggers, ", "))},
	}, nil
}

// containsTrigger reports whether trigger appears as whole words in the
// space-delimited token stream.
func containsTrigger(joined, trigger string) bool {
	toks := uncertainty.Tokenize(trigger)
	if len(toks) == 0 {
		return false
	}
	return strings.Contains(joined, " "+strings.Join(toks, " ")+" ")
}
