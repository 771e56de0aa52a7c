package clarify

import (
	"strings"

	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// PartialNote marks output composed from a session that ended early.
const PartialNote = "Note: clarification ended before completion; this output reflects only the answers received."

// answer is one learned fact in the order it was given.
type answer struct {
	question string
	text     string
}

// collect groups answers by bucket, preserving response order.
func collect(s *Session) map[string][]answer {
	out := make(map[string][]answer)
	for _, r := range s.Responses {
		q, ok := s.question(r.QuestionID)
		if !ok {
			continue
		}
		b := r.Stage.Bucket()
		out[b] = append(out[b], answer{question: q.Text, text: r.Text})
	}
	return out
}

func writeSection(b *strings.Builder, title string, answers []answer) {
	if len(answers) == 0 {
		return
	}
	b.WriteString(title)
	b.WriteString(":\n")
	for _, a := range answers {
		b.WriteString("- ")
		b.WriteString(a.question)
		b.WriteString(" ")
		b.WriteString(a.text)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

var bucketTitles = map[string]string{
	BucketContext:      "Context",
	BucketRequirements: "Requirements",
	BucketConstraints:  "Constraints",
	BucketPreferences:  "Preferences",
	BucketRefinement:   "Refinements",
	BucketValidation:   "Validation",
}

// Compose builds the refined output for a session. It is deterministic and
// returns the original output unchanged when nothing has been learned.
func Compose(s *Session) string {
	if len(s.Responses) == 0 {
		return s.OriginalOutput
	}
	byBucket := collect(s)

	var lead []string
	switch s.Domain {
	case uncertainty.DomainTechnical:
		lead = []string{BucketRequirements, BucketConstraints}
	case uncertainty.DomainCompliance:
		lead = []string{BucketContext, BucketConstraints}
	}
	isLead := make(map[string]bool, len(lead))
	for _, b := range lead {
		isLead[b] = true
	}

	var b strings.Builder
	for _, bucket := range lead {
		title := bucketTitles[bucket]
		if s.Domain == uncertainty.DomainCompliance && bucket == BucketContext {
			title = "Regulatory context"
		}
		writeSection(&b, title, byBucket[bucket])
	}

	b.WriteString(s.OriginalOutput)
	b.WriteString("\n\n")

	var rest []answer
	for _, bucket := range bucketOrder {
		if !isLead[bucket] {
			rest = append(rest, byBucket[bucket]...)
		}
	}
	if len(lead) > 0 {
		writeSection(&b, "Additional context", rest)
	} else {
		writeSection(&b, "Based on your answers", rest)
	}

	out := strings.TrimRight(b.String(), "\n")
	if s.Domain == uncertainty.DomainCompliance {
		out += "\n\n" + routing.RiskMitigationNote
	}
	if s.Status == StatusAbandoned {
		out += "\n\n" + PartialNote
	}
	return out
}
