package routing

import (
	"strings"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Learned-context field names produced by the domain extractors.
const (
	FieldIntent            = "intent"
	FieldPreferences       = "preferences"
	FieldRequirements      = "requirements"
	FieldConstraints       = "constraints"
	FieldRegulatoryContext = "regulatory_context"
	FieldRiskTolerance     = "risk_tolerance"
)

// extraction is what a domain extractor found in a human response.
type extraction struct {
	fields map[string]string
	found  int
}

// handler is the per-domain behavior of the router. The set of handlers is
// closed and looked up through a single table.
type handler struct {
	render  func(promptData) string
	extract func(HumanResponse) extraction
	compose func(original string, fields map[string]string) string
	// expected lists the fields the extractor tries to fill.
	expected []string
	audited  bool
}

func defaultHandlers() map[uncertainty.Domain]handler {
	return map[uncertainty.Domain]handler{
		uncertainty.DomainConversational: {
			render:   renderConversational,
			extract:  extractConversational,
			compose:  composeConversational,
			expected: []string{FieldIntent, FieldPreferences},
		},
		uncertainty.DomainTechnical: {
			render:   renderTechnical,
			extract:  extractTechnical,
			compose:  composeTechnical,
			expected: []string{FieldRequirements, FieldConstraints},
		},
		uncertainty.DomainCompliance: {
			render:   renderCompliance,
			extract:  extractCompliance,
			compose:  composeCompliance,
			expected: []string{FieldRegulatoryContext, FieldRiskTolerance},
			audited:  true,
		},
	}
}

var (
	preferenceMarkers  = []string{"prefer", "like", "want", "would rather", "rather", "love", "hate", "should", "wish", "favorite"}
	requirementMarkers = []string{"must", "should", "need", "needs", "require", "requires", "required", "support", "supports", "has to", "have to", "expect"}
	constraintMarkers  = []string{
		"cannot", "can't", "must not", "mustn't", "limit", "limited", "within", "under", "only",
		"no more than", "at most", "maximum", "max", "budget", "deadline", "compatible",
		"without", "avoid", "restricted",
	}
	regulatoryMarkers = []string{
		"gdpr", "hipaa", "sox", "pci", "ccpa", "ferpa", "glba", "basel", "mifid", "iso",
		"regulation", "regulations", "regulatory", "law", "laws", "directive", "act",
		"policy", "policies", "standard", "statute", "framework",
	}
)

// sentencesWith returns the sentences of text that contain any marker.
func sentencesWith(text string, markers []string) []string {
	var out []string
	for _, s := range uncertainty.SplitSentences(text) {
		joined := " " + strings.Join(uncertainty.Tokenize(s), " ") + " "
		for _, m := range markers {
			if containsTrigger(joined, m) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func firstSentence(text string) string {
	if s := uncertainty.SplitSentences(text); len(s) > 0 {
		return s[0]
	}
	return strings.TrimSpace(text)
}

// fill sets a field from extra context when provided, else from the
// extracted value, and counts it when non-empty.
func (e *extraction) fill(key, extracted string, extra map[string]string) {
	v := strings.TrimSpace(extra[key])
	if v == "" {
		v = strings.TrimSpace(extracted)
	}
	if v == "" {
		return
	}
	e.fields[key] = v
	e.found++
}

func extractConversational(r HumanResponse) extraction {
	e := extraction{fields: map[string]string{}}
	e.fill(FieldIntent, firstSentence(r.Text), r.Extra)
	e.fill(FieldPreferences, strings.Join(sentencesWith(r.Text, preferenceMarkers), " "), r.Extra)
	return e
}

func extractTechnical(r HumanResponse) extraction {
	e := extraction{fields: map[string]string{}}
	constraints := sentencesWith(r.Text, constraintMarkers)
	isConstraint := make(map[string]bool, len(constraints))
	for _, s := range constraints {
		isConstraint[s] = true
	}
	var reqs []string
	for _, s := range sentencesWith(r.Text, requirementMarkers) {
		if !isConstraint[s] {
			reqs = append(reqs, s)
		}
	}
	e.fill(FieldRequirements, strings.Join(reqs, " "), r.Extra)
	e.fill(FieldConstraints, strings.Join(constraints, " "), r.Extra)
	return e
}

// riskTolerance maps the wording of a response to low, medium or high.
// Unclear wording reads as low tolerance.
func riskTolerance(text string) (string, bool) {
	joined := " " + strings.Join(uncertainty.Tokenize(text), " ") + " "
	switch {
	case containsTrigger(joined, "aggressive") || containsTrigger(joined, "flexible") || containsTrigger(joined, "high risk"):
		return "high", true
	case containsTrigger(joined, "moderate") || containsTrigger(joined, "balanced") || containsTrigger(joined, "medium"):
		return "medium", true
	case containsTrigger(joined, "conservative") || containsTrigger(joined, "strict") || containsTrigger(joined, "zero tolerance") || containsTrigger(joined, "low risk"):
		return "low", true
	}
	return "low", false
}

func extractCompliance(r HumanResponse) extraction {
	e := extraction{fields: map[string]string{}}
	e.fill(FieldRegulatoryContext, strings.Join(sentencesWith(r.Text, regulatoryMarkers), " "), r.Extra)

	if v := strings.TrimSpace(r.Extra[FieldRiskTolerance]); v != "" {
		e.fields[FieldRiskTolerance] = v
		e.found++
	} else if tol, ok := riskTolerance(r.Text); ok {
		e.fields[FieldRiskTolerance] = tol
		e.found++
	} else {
		e.fields[FieldRiskTolerance] = tol
	}
	return e
}

func composeConversational(original string, f map[string]string) string {
	var notes []string
	if v := f[FieldIntent]; v != "" {
		notes = append(notes, "you asked: "+v)
	}
	if v := f[FieldPreferences]; v != "" {
		notes = append(notes, "your preferences: "+v)
	}
	if len(notes) == 0 {
		return original
	}
	return original + "\n\n(Adjusted for " + strings.Join(notes, "; ") + ")"
}

func composeTechnical(original string, f map[string]string) string {
	var b strings.Builder
	if v := f[FieldRequirements]; v != "" {
		b.WriteString("Requirements: " + v + "\n")
	}
	if v := f[FieldConstraints]; v != "" {
		b.WriteString("Constraints: " + v + "\n")
	}
	if b.Len() == 0 {
		return original
	}
	return b.String() + "\n" + original
}

func composeCompliance(original string, f map[string]string) string {
	var b strings.Builder
	if v := f[FieldRegulatoryContext]; v != "" {
		b.WriteString("Regulatory context: " + v + "\n")
	}
	b.WriteString("Risk tolerance: " + f[FieldRiskTolerance] + "\n\n")
	b.WriteString(original)
	b.WriteString("\n\n" + RiskMitigationNote)
	return b.String()
}

// RiskMitigationNote is appended to every compliance output.
const RiskMitigationNote = "Risk mitigation: this output was reviewed under uncertainty. Verify it against the applicable regulations with a qualified compliance reviewer before relying on it."
