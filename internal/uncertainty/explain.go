package uncertainty

import (
	"fmt"
	"strings"
)

var sourceClauses = map[Source]string{
	SourceAssessmentFailure:       "the assessment could not be completed, so scores were set conservatively",
	SourceInsufficientContext:     "there is not enough context to judge the output reliably",
	SourceKnowledgeGap:            "the topic is poorly covered by available knowledge",
	SourceMultipleInterpretations: "the request admits more than one reasonable interpretation",
	SourceAmbiguousLanguage:       "the output relies on hedged or vague language",
	SourceSubjectiveElements:      "parts of the answer depend on personal preference",
	SourceConflictingInformation:  "the output contains statements that pull in different directions",
	SourceLowConfidence:           "the assessment itself is not well calibrated",
}

// Level names the band an overall score falls in.
func Level(overall float64) string {
	switch {
	case overall < 0.3:
		return "low"
	case overall < 0.6:
		return "moderate"
	default:
		return "high"
	}
}

// Explain renders a human-readable explanation of a. It is deterministic
// for a given assessment and context.
func Explain(a Assessment, c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall uncertainty is %s (%.2f) for this %s output", Level(a.Overall), a.Overall, resolvedDomain(a.Domain))

	var clauses []string
	for _, s := range a.Sources {
		if cl, ok := sourceClauses[s]; ok {
			clauses = append(clauses, cl)
		}
	}
	if len(clauses) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(clauses, "; "))
	}
	b.WriteString(".")

	if c.Stakes == StakesHigh || a.HasSource(SourceHighStakes) {
		b.WriteString(" Stakes are high, so even moderate uncertainty warrants human review.")
	}
	return b.String()
}

// SourceClause returns the explanation clause for s, or "" for sources
// that carry no clause of their own.
func SourceClause(s Source) string {
	return sourceClauses[s]
}
