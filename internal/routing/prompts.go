package routing

import (
	"fmt"
	"strings"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

type promptData struct {
	Strategy        uncertainty.Strategy
	Assessment      uncertainty.Assessment
	Context         uncertainty.Context
	Output          string
	RecommendExpert bool
}

// concerns returns the explanation clauses of the assessment's sources.
func (d promptData) concerns() []string {
	var out []string
	for _, s := range d.Assessment.Sources {
		if cl := uncertainty.SourceClause(s); cl != "" {
			out = append(out, cl)
		}
	}
	return out
}

// clause returns the leading concern, or a neutral stand-in.
func (d promptData) clause() string {
	c := d.concerns()
	if len(c) == 0 {
		return "I want to make sure I've understood you"
	}
	return c[0]
}

func (d promptData) reason() string {
	return upperFirst(d.clause())
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func upperFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func renderConversational(d promptData) string {
	switch d.Strategy {
	case uncertainty.StrategyProceed:
		return "Looks clear enough, so I'll go ahead with this answer."
	case uncertainty.StrategyBrief:
		return fmt.Sprintf("Quick check before I go on: %s. Could you tell me a little more about what you're after?", d.clause())
	case uncertainty.StrategyDialogue:
		return fmt.Sprintf("I'd like to talk this through with you. %s, so I'll ask a few short questions to get it right.", d.reason())
	case uncertainty.StrategyCollaborative:
		return fmt.Sprintf("This one is worth working through together. %s. Can we look at the options side by side?", d.reason())
	default:
		return fmt.Sprintf("This needs someone with specific expertise. %s. I'd suggest bringing in an expert before we go further.", d.reason())
	}
}

func renderTechnical(d promptData) string {
	a := d.Assessment
	var b strings.Builder
	fmt.Fprintf(&b, "Technical review requested (%s).\n", d.Strategy)
	fmt.Fprintf(&b, "Uncertainty: overall %.2f (epistemic %.2f, aleatoric %.2f, confidence %.2f).\n",
		a.Overall, a.Epistemic, a.Aleatoric, a.Confidence)
	if d.Context.TaskType != "" {
		fmt.Fprintf(&b, "Task: %s\n", d.Context.TaskType)
	}
	fmt.Fprintf(&b, "Output under review: %q\n", excerpt(d.Output, 160))
	if c := d.concerns(); len(c) > 0 {
		b.WriteString("Concerns:\n")
		for _, cl := range c {
			fmt.Fprintf(&b, "- %s\n", cl)
		}
	}
	if d.Strategy == uncertainty.StrategyProceed {
		b.WriteString("No input required; proceeding.")
		return b.String()
	}

	b.WriteString("Please provide:\n")
	items := []string{"Functional requirements the output must satisfy"}
	if d.Strategy.Rank() >= uncertainty.StrategyDialogue.Rank() {
		items = append(items,
			"Constraints (performance, compatibility, deployment environment)",
			"Acceptance criteria")
	}
	if d.Strategy.Rank() >= uncertainty.StrategyCollaborative.Rank() {
		items = append(items, "Architecture decisions or alternatives already considered")
	}
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCompliance(d promptData) string {
	a := d.Assessment
	var b strings.Builder
	fmt.Fprintf(&b, "Compliance review required (%s). Overall uncertainty %.2f.\n", d.Strategy, a.Overall)
	if c := d.concerns(); len(c) > 0 {
		fmt.Fprintf(&b, "Concerns: %s.\n", strings.Join(c, "; "))
	}
	if d.Context.Stakes == uncertainty.StakesHigh {
		b.WriteString("Stakes: high.\n")
	}
	b.WriteString("Please confirm the applicable regulatory framework and the acceptable risk tolerance before this output is used.")
	if d.RecommendExpert {
		fmt.Fprintf(&b, "\nRecommendation: escalate to %s with a qualified compliance reviewer before finalizing.", uncertainty.StrategyExpert)
	}
	return b.String()
}
