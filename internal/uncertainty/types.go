package uncertainty

import (
	"sort"
	"time"
)

// Domain identifies the kind of work an output belongs to. The set is
// extensible; domains without a profile resolve to conversational.
type Domain string

const (
	DomainConversational Domain = "conversational"
	DomainTechnical      Domain = "technical"
	DomainCompliance     Domain = "compliance"
)

// Known reports whether d has a built-in profile.
func (d Domain) Known() bool {
	switch d {
	case DomainConversational, DomainTechnical, DomainCompliance:
		return true
	}
	return false
}

// Strategy is the mode of human involvement selected for an output.
type Strategy string

const (
	StrategyProceed       Strategy = "proceed_with_confidence"
	StrategyBrief         Strategy = "brief_clarification"
	StrategyDialogue      Strategy = "structured_dialogue"
	StrategyCollaborative Strategy = "collaborative_analysis"
	StrategyExpert        Strategy = "expert_consultation"
)

// Strategies lists every strategy from least to most human involvement.
var Strategies = []Strategy{
	StrategyProceed,
	StrategyBrief,
	StrategyDialogue,
	StrategyCollaborative,
	StrategyExpert,
}

// Rank orders strategies by escalation level. Unknown strategies rank
// highest so comparisons err toward more oversight.
func (s Strategy) Rank() int {
	for i, v := range Strategies {
		if v == s {
			return i
		}
	}
	return len(Strategies)
}

// Valid reports whether s is one of the five strategies.
func (s Strategy) Valid() bool {
	return s.Rank() < len(Strategies)
}

// RequiresHuman reports whether the strategy involves a human at all.
func (s Strategy) RequiresHuman() bool {
	return s != StrategyProceed
}

// Stakes describes the cost of a wrong unattended decision.
type Stakes string

const (
	StakesLow    Stakes = "low"
	StakesMedium Stakes = "medium"
	StakesHigh   Stakes = "high"
)

// TimeSensitivity describes how quickly the caller needs an answer.
type TimeSensitivity string

const (
	TimeLow    TimeSensitivity = "low"
	TimeNormal TimeSensitivity = "normal"
	TimeUrgent TimeSensitivity = "urgent"
)

// Expertise is the self-reported expertise of the user.
type Expertise string

const (
	ExpertiseNovice       Expertise = "novice"
	ExpertiseIntermediate Expertise = "intermediate"
	ExpertiseExpert       Expertise = "expert"
)

// MaxHistory bounds the interaction history carried in a Context.
const MaxHistory = 20

// Interaction is one prior exchange recorded in a Context.
type Interaction struct {
	Timestamp   time.Time `json:"timestamp"`
	Summary     string    `json:"summary"`
	Accuracy    float64   `json:"accuracy,omitempty"`
	HasAccuracy bool      `json:"has_accuracy,omitempty"`
}

// Context describes the situation an output was produced in. It is a value
// type: the engine works on copies and never mutates the caller's.
type Context struct {
	Domain             Domain          `json:"domain,omitempty"`
	TaskType           string          `json:"task_type,omitempty"`
	UserExpertise      Expertise       `json:"user_expertise,omitempty"`
	Stakes             Stakes          `json:"stakes,omitempty"`
	TimeSensitivity    TimeSensitivity `json:"time_sensitivity,omitempty"`
	History            []Interaction   `json:"history,omitempty"`
	AvailableResources []string        `json:"available_resources,omitempty"`
	SessionID          string          `json:"session_id,omitempty"`
	UserID             string          `json:"user_id,omitempty"`
}

// Normalized returns a copy of c with defaults filled in and history
// trimmed to the most recent MaxHistory entries.
func (c Context) Normalized() Context {
	out := c
	if out.Stakes == "" {
		out.Stakes = StakesMedium
	}
	if out.TimeSensitivity == "" {
		out.TimeSensitivity = TimeNormal
	}
	if out.UserExpertise == "" {
		out.UserExpertise = ExpertiseIntermediate
	}
	if len(c.History) > MaxHistory {
		out.History = append([]Interaction(nil), c.History[len(c.History)-MaxHistory:]...)
	} else if c.History != nil {
		out.History = append([]Interaction(nil), c.History...)
	}
	if c.AvailableResources != nil {
		out.AvailableResources = append([]string(nil), c.AvailableResources...)
	}
	return out
}

// Source names a reason an output is uncertain. The vocabulary is stable:
// the router and the explanation templates key off these values.
type Source string

const (
	SourceInsufficientContext     Source = "insufficient_context"
	SourceMultipleInterpretations Source = "multiple_interpretations"
	SourceSubjectiveElements      Source = "subjective_elements"
	SourceConflictingInformation  Source = "conflicting_information"
	SourceAmbiguousLanguage       Source = "ambiguous_language"
	SourceKnowledgeGap            Source = "knowledge_gap"
	SourceLowConfidence           Source = "low_assessment_confidence"
	SourceHighStakes              Source = "high_stakes"
	SourceAssessmentFailure       Source = "assessment_failure"
)

// sourceOrder fixes the order sources are reported and explained in.
var sourceOrder = []Source{
	SourceAssessmentFailure,
	SourceInsufficientContext,
	SourceKnowledgeGap,
	SourceMultipleInterpretations,
	SourceAmbiguousLanguage,
	SourceSubjectiveElements,
	SourceConflictingInformation,
	SourceLowConfidence,
	SourceHighStakes,
}

func sourceRank(s Source) int {
	for i, v := range sourceOrder {
		if v == s {
			return i
		}
	}
	return len(sourceOrder)
}

// sortSources deduplicates and orders sources by the fixed vocabulary order.
func sortSources(in []Source) []Source {
	seen := make(map[Source]bool, len(in))
	out := make([]Source, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := sourceRank(out[i]), sourceRank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// Dimension names one of the three uncertainty scores.
type Dimension string

const (
	DimensionEpistemic  Dimension = "epistemic"
	DimensionAleatoric  Dimension = "aleatoric"
	DimensionConfidence Dimension = "confidence"
)

// Interval is a confidence interval around a dimension score.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Assessment is the structured, multi-dimensional result of Assess.
type Assessment struct {
	Epistemic      float64                `json:"epistemic"`
	Aleatoric      float64                `json:"aleatoric"`
	Confidence     float64                `json:"confidence"`
	Overall        float64                `json:"overall"`
	Sources        []Source               `json:"sources"`
	Intervals      map[Dimension]Interval `json:"intervals,omitempty"`
	Explanation    string                 `json:"explanation"`
	Recommendation Strategy               `json:"engagement_recommendation"`
	Domain         Domain                 `json:"domain"`
	Fallback       bool                   `json:"fallback,omitempty"`
	AssessedAt     time.Time              `json:"assessed_at"`
}

// HasSource reports whether s was identified in the assessment.
func (a Assessment) HasSource(s Source) bool {
	for _, v := range a.Sources {
		if v == s {
			return true
		}
	}
	return false
}

// Clamp bounds v to [0,1]. NaN maps to 1 so broken arithmetic reads as
// maximal uncertainty.
func Clamp(v float64) float64 {
	if v != v {
		return 1
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
