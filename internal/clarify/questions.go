package clarify

import (
	"sort"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// questionTemplate is one entry of the question bank. Domains and Sources
// restrict when the template applies; empty means always. FollowUps are
// offered to the human as probes if the first answer stays vague.
type questionTemplate struct {
	Text      string
	Type      QuestionType
	Priority  int
	Options   []string
	Hint      string
	FollowUps []string
	Domains   []uncertainty.Domain
	Sources   []uncertainty.Source
}

func (t questionTemplate) applies(d uncertainty.Domain, a uncertainty.Assessment) bool {
	if len(t.Domains) > 0 {
		ok := false
		for _, v := range t.Domains {
			if v == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(t.Sources) > 0 {
		for _, s := range t.Sources {
			if a.HasSource(s) {
				return true
			}
		}
		return false
	}
	return true
}

var (
	tech       = []uncertainty.Domain{uncertainty.DomainTechnical}
	compliance = []uncertainty.Domain{uncertainty.DomainCompliance}
	conv       = []uncertainty.Domain{uncertainty.DomainConversational}
)

// questionBank holds the templates per stage.
var questionBank = map[Stage][]questionTemplate{
	StageInitialContext: {
		{Text: "Which of the possible readings of your request did you mean?", Type: QuestionClarification, Priority: 5,
			Sources:   []uncertainty.Source{uncertainty.SourceMultipleInterpretations},
			FollowUps: []string{"Can you give an example of the result you expect?", "Which reading would be clearly wrong?"}},
		{Text: "What information is missing that would help me answer this well?", Type: QuestionOpenEnded, Priority: 5,
			Sources:   []uncertainty.Source{uncertainty.SourceInsufficientContext, uncertainty.SourceKnowledgeGap},
			FollowUps: []string{"Where could that information be found?"}},
		{Text: "Two parts of the answer seem to conflict. Which one should take precedence?", Type: QuestionClarification, Priority: 5,
			Sources:   []uncertainty.Source{uncertainty.SourceConflictingInformation},
			FollowUps: []string{"Under what conditions would the other one apply?"}},
		{Text: "What are you trying to achieve with this?", Type: QuestionOpenEnded, Priority: 4},
		{Text: "Who will use the result, and in what setting?", Type: QuestionOpenEnded, Priority: 3},
		{Text: "What system, service or codebase does this concern?", Type: QuestionOpenEnded, Priority: 4, Domains: tech},
		{Text: "Which jurisdiction and regulatory framework apply here?", Type: QuestionOpenEnded, Priority: 5, Domains: compliance},
		{Text: "Is this for yourself or for someone else?", Type: QuestionBinary, Priority: 2, Domains: conv,
			Options: []string{"myself", "someone else"}},
	},
	StageRequirements: {
		{Text: "What must the result do for you to consider it correct?", Type: QuestionOpenEnded, Priority: 4},
		{Text: "Which details matter most to you?", Type: QuestionOpenEnded, Priority: 3},
		{Text: "What inputs and outputs should the solution handle?", Type: QuestionOpenEnded, Priority: 5, Domains: tech},
		{Text: "Are there performance or scale targets it must meet?", Type: QuestionOpenEnded, Priority: 4, Domains: tech,
			Hint: "for example requests per second or data volume"},
		{Text: "Which obligations must the output satisfy (disclosure, consent, retention)?", Type: QuestionOpenEnded, Priority: 5, Domains: compliance},
	},
	StageConstraints: {
		{Text: "Is there anything the solution must avoid or cannot use?", Type: QuestionOpenEnded, Priority: 4},
		{Text: "Are there time or budget limits to work within?", Type: QuestionOpenEnded, Priority: 3},
		{Text: "Which versions, platforms or dependencies are fixed?", Type: QuestionOpenEnded, Priority: 5, Domains: tech},
		{Text: "What level of risk is acceptable?", Type: QuestionMultipleChoice, Priority: 5, Domains: compliance,
			Options: []string{"conservative", "moderate", "aggressive"}},
	},
	StagePreferences: {
		{Text: "Which of the options do you prefer, and why?", Type: QuestionOpenEnded, Priority: 5,
			Sources:   []uncertainty.Source{uncertainty.SourceSubjectiveElements},
			FollowUps: []string{"What would make you change that preference?"}},
		{Text: "Do you have a preferred style or format for the answer?", Type: QuestionOpenEnded, Priority: 3},
		{Text: "How important is simplicity compared with completeness?", Type: QuestionScale, Priority: 3,
			Options: []string{"1", "2", "3", "4", "5"}},
		{Text: "Do you prefer an established approach or a newer one?", Type: QuestionBinary, Priority: 4, Domains: tech,
			Options: []string{"established", "newer"}},
	},
	StageRefinement: {
		{Text: "Which part of the current answer should change the most?", Type: QuestionOpenEnded, Priority: 4},
		{Text: "Is anything in the answer unclear or worded too loosely?", Type: QuestionOpenEnded, Priority: 4,
			Sources:   []uncertainty.Source{uncertainty.SourceAmbiguousLanguage},
			FollowUps: []string{"How would you phrase that part instead?"}},
		{Text: "Is there an example of a result you would consider ideal?", Type: QuestionOpenEnded, Priority: 3},
		{Text: "Which controls or safeguards should be documented?", Type: QuestionOpenEnded, Priority: 5, Domains: compliance},
	},
	StageValidation: {
		{Text: "Does the refined answer now match what you need?", Type: QuestionConfirmation, Priority: 5,
			Options: []string{"yes", "no"}},
		{Text: "Is there anything left that we have not covered?", Type: QuestionOpenEnded, Priority: 4},
		{Text: "Can this be signed off, or does it need another reviewer?", Type: QuestionConfirmation, Priority: 5, Domains: compliance,
			Options: []string{"sign off", "needs review"}},
	},
}

// candidates returns the applicable templates of a stage, highest
// priority first. Equal priorities keep bank order.
func candidates(st Stage, d uncertainty.Domain, a uncertainty.Assessment) []questionTemplate {
	var out []questionTemplate
	for _, t := range questionBank[st] {
		if t.applies(d, a) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
