package routing

import (
	"time"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Priority is the urgency attached to an engagement request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityOrder = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Rank orders priorities from low to critical. Unknown values rank lowest.
func (p Priority) Rank() int {
	for i, v := range priorityOrder {
		if v == p {
			return i
		}
	}
	return -1
}

// raise returns the next priority level, saturating at critical.
func (p Priority) raise() Priority {
	for i, v := range priorityOrder {
		if v == p && i+1 < len(priorityOrder) {
			return priorityOrder[i+1]
		}
	}
	return PriorityCritical
}

// Mode is how the caller should wait for the human.
type Mode string

const (
	ModeSynchronous  Mode = "synchronous"
	ModeAsynchronous Mode = "asynchronous"
	ModeHybrid       Mode = "hybrid"
)

// EngagementRequest describes how a human should be involved for one
// routing decision. It is created once and never modified.
type EngagementRequest struct {
	ID                string                 `json:"id"`
	SessionID         string                 `json:"session_id,omitempty"`
	UserID            string                 `json:"user_id,omitempty"`
	OriginalOutput    string                 `json:"original_output"`
	Assessment        uncertainty.Assessment `json:"assessment"`
	Context           uncertainty.Context    `json:"context"`
	Domain            uncertainty.Domain     `json:"domain"`
	Strategy          uncertainty.Strategy   `json:"strategy"`
	Priority          Priority               `json:"priority"`
	EstimatedMinutes  int                    `json:"estimated_duration_minutes"`
	RequiredExpertise []string               `json:"required_expertise"`
	Mode              Mode                   `json:"collaboration_mode"`
	Prompt            string                 `json:"engagement_prompt"`
	FallbackOptions   []string               `json:"fallback_options"`
	Metadata          map[string]string      `json:"metadata"`
	Fallback          bool                   `json:"fallback,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// EstimatedDuration returns the duration estimate as a time.Duration.
func (r *EngagementRequest) EstimatedDuration() time.Duration {
	return time.Duration(r.EstimatedMinutes) * time.Minute
}

// HumanResponse is free-text input from a human for a request.
type HumanResponse struct {
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// AuditDocumentation records a compliance interaction.
type AuditDocumentation struct {
	RequestID         string            `json:"request_id"`
	SessionID         string            `json:"session_id,omitempty"`
	UserID            string            `json:"user_id,omitempty"`
	Strategy          string            `json:"strategy"`
	Overall           float64           `json:"overall_uncertainty"`
	RegulatoryContext string            `json:"regulatory_context,omitempty"`
	RiskTolerance     string            `json:"risk_tolerance"`
	ResponseDigest    string            `json:"response_digest"`
	HumanConfidence   float64           `json:"human_confidence"`
	ReviewRequired    bool              `json:"review_required"`
	Fields            map[string]string `json:"fields,omitempty"`
	RecordedAt        time.Time         `json:"recorded_at"`
}

// ProcessedResponse is the result of interpreting a human response.
type ProcessedResponse struct {
	RefinedOutput      string              `json:"refined_output"`
	ConfidenceBoost    float64             `json:"confidence_boost"`
	LearnedContext     map[string]string   `json:"learned_context"`
	FollowUpNeeded     bool                `json:"follow_up_needed"`
	AuditDocumentation *AuditDocumentation `json:"audit_documentation,omitempty"`
}
