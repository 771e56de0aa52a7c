package engine

import (
	"github.com/ziadkadry99/hitl/internal/clarify"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// AssessRequest is the input of AssessUncertainty.
type AssessRequest struct {
	Text    string              `json:"text" validate:"notblank,maxbytes"`
	Context uncertainty.Context `json:"context"`
}

// VerifyRequest is the input of VerifyWithEngagement. A positive
// EngagementThreshold forces clarification once the overall score reaches it.
type VerifyRequest struct {
	SessionID           string              `json:"session_id"`
	Text                string              `json:"text" validate:"notblank,maxbytes"`
	Context             uncertainty.Context `json:"context"`
	EngagementThreshold float64             `json:"engagement_threshold" validate:"gte=0,lte=1"`
	Collaborators       []string            `json:"collaborators,omitempty" validate:"max=32,dive,notblank"`
}

// VerifyResult reports whether a human must be involved and, if so, the
// session created for it.
type VerifyResult struct {
	RequiresClarification  bool                       `json:"requires_clarification"`
	Assessment             uncertainty.Assessment     `json:"assessment"`
	ConfidenceLevel        float64                    `json:"confidence_level"`
	EngagementStrategy     uncertainty.Strategy       `json:"engagement_strategy,omitempty"`
	ClarificationSessionID string                     `json:"clarification_session_id,omitempty"`
	InitialQuestions       []clarify.Question         `json:"initial_questions,omitempty"`
	EstimatedDuration      int                        `json:"estimated_duration,omitempty"`
	Engagement             *routing.EngagementRequest `json:"engagement,omitempty"`
}

// RespondRequest is the input of ClarificationRespond.
type RespondRequest struct {
	SessionID    string            `json:"clarification_session_id" validate:"notblank"`
	QuestionID   string            `json:"question_id" validate:"notblank"`
	ResponseText string            `json:"response_text" validate:"notblank,maxbytes"`
	Confidence   *float64          `json:"confidence" validate:"required,gte=0,lte=1"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// RespondResult either carries the next round of questions (Continues) or
// the refined output of a finished session.
type RespondResult struct {
	Continues             bool                         `json:"continues"`
	SessionID             string                       `json:"clarification_session_id"`
	Status                clarify.Status               `json:"status"`
	Stage                 clarify.Stage                `json:"stage"`
	EstimatedCompletion   float64                      `json:"estimated_completion"`
	NextQuestions         []clarify.Question           `json:"next_questions,omitempty"`
	RefinedOutput         string                       `json:"refined_output,omitempty"`
	ConfidenceImprovement float64                      `json:"confidence_improvement"`
	LearnedContext        map[string]map[string]string `json:"learned_context"`
	ResponseBoost         float64                      `json:"response_boost,omitempty"`
	FollowUpNeeded        bool                         `json:"follow_up_needed,omitempty"`
	AuditDocumentation    *routing.AuditDocumentation  `json:"audit_documentation,omitempty"`
}

// SimulateRequest is the input of SimulateEngagement. A supplied assessment
// is rescored against the domain profile; otherwise the text is assessed
// first.
type SimulateRequest struct {
	Text       string                  `json:"text" validate:"notblank,maxbytes"`
	Context    uncertainty.Context     `json:"context"`
	Assessment *uncertainty.Assessment `json:"assessment,omitempty"`
}

// OutputResult is the refined or partial output of a session.
type OutputResult struct {
	SessionID     string         `json:"clarification_session_id"`
	Status        clarify.Status `json:"status"`
	Partial       bool           `json:"partial"`
	RefinedOutput string         `json:"refined_output"`
}
