package clarify

import (
	"errors"
	"time"

	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

var (
	ErrSessionNotFound   = errors.New("clarification session not found")
	ErrUnknownQuestion   = errors.New("question does not belong to this session")
	ErrAlreadyAnswered   = errors.New("question has already been answered")
	ErrInvalidConfidence = errors.New("confidence must be within [0,1]")
	ErrEmptyResponse     = errors.New("response text is empty")
	ErrEmptyOutput       = errors.New("output is empty")
)

// Stage is one phase of the clarification dialogue. Stages only move
// forward.
type Stage string

const (
	StageInitialContext Stage = "initial_context"
	StageRequirements   Stage = "specific_requirements"
	StageConstraints    Stage = "constraint_identification"
	StagePreferences    Stage = "preference_elicitation"
	StageRefinement     Stage = "solution_refinement"
	StageValidation     Stage = "validation"
	StageCompletion     Stage = "completion"
)

// Stages lists the stages in dialogue order.
var Stages = []Stage{
	StageInitialContext,
	StageRequirements,
	StageConstraints,
	StagePreferences,
	StageRefinement,
	StageValidation,
	StageCompletion,
}

// Index returns the position of s in the dialogue, or -1.
func (s Stage) Index() int {
	for i, v := range Stages {
		if v == s {
			return i
		}
	}
	return -1
}

// Next returns the following stage. Completion is its own successor.
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 || i+1 >= len(Stages) {
		return StageCompletion
	}
	return Stages[i+1]
}

// Learned-context buckets.
const (
	BucketContext      = "context"
	BucketRequirements = "requirements"
	BucketConstraints  = "constraints"
	BucketPreferences  = "preferences"
	BucketRefinement   = "refinement"
	BucketValidation   = "validation"
)

// bucketOrder is the order buckets are composed in.
var bucketOrder = []string{
	BucketContext, BucketRequirements, BucketConstraints,
	BucketPreferences, BucketRefinement, BucketValidation,
}

// Bucket returns the learned-context namespace for answers given in s.
func (s Stage) Bucket() string {
	switch s {
	case StageInitialContext:
		return BucketContext
	case StageRequirements:
		return BucketRequirements
	case StageConstraints:
		return BucketConstraints
	case StagePreferences:
		return BucketPreferences
	case StageRefinement:
		return BucketRefinement
	default:
		return BucketValidation
	}
}

// Status is the session lifecycle state, orthogonal to Stage. Active and
// paused sessions move between each other freely; completed and abandoned
// are final.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further input is accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// QuestionType is the expected shape of an answer.
type QuestionType string

const (
	QuestionOpenEnded      QuestionType = "open_ended"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionBinary         QuestionType = "binary"
	QuestionScale          QuestionType = "scale"
	QuestionClarification  QuestionType = "clarification"
	QuestionConfirmation   QuestionType = "confirmation"
)

// Question is one question asked in a session.
type Question struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Stage       Stage        `json:"stage"`
	Priority    int          `json:"priority"`
	Options     []string     `json:"options,omitempty"`
	ContextHint string       `json:"context_hint,omitempty"`
	FollowUps   []string     `json:"follow_ups,omitempty"`
	AskedAt     time.Time    `json:"asked_at"`
}

// Response is a human answer to a question.
type Response struct {
	QuestionID string            `json:"question_id"`
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Extra      map[string]string `json:"extra,omitempty"`
	Stage      Stage             `json:"stage"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NextAction tells the caller what to do after a response.
type NextAction string

const (
	ActionContinue      NextAction = "continue_clarification"
	ActionRefinedOutput NextAction = "generate_refined_output"
	ActionPartialOutput NextAction = "generate_partial_output"
	ActionResume        NextAction = "resume_session"
)

// Session is the full state of one clarification dialogue.
type Session struct {
	ID             string                     `json:"id"`
	UserID         string                     `json:"user_id"`
	Collaborators  []string                   `json:"collaborators,omitempty"`
	OriginalOutput string                     `json:"original_output"`
	Assessment     uncertainty.Assessment     `json:"assessment"`
	Context        uncertainty.Context        `json:"context"`
	Domain         uncertainty.Domain         `json:"domain"`
	Strategy       uncertainty.Strategy       `json:"strategy"`
	Request        *routing.EngagementRequest `json:"request,omitempty"`

	Stage     Stage      `json:"stage"`
	Status    Status     `json:"status"`
	Questions []Question `json:"questions"`
	Responses []Response `json:"responses"`

	LearnedContext        map[string]map[string]string `json:"learned_context"`
	ConfidenceProgression []float64                    `json:"confidence_progression"`
	EstimatedCompletion   float64                      `json:"estimated_completion"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OwnerID and CollaboratorIDs expose the ownership fields used for
// authorization checks.
func (s *Session) OwnerID() string { return s.UserID }

func (s *Session) CollaboratorIDs() []string { return s.Collaborators }

// BaseConfidence is the first value of the confidence progression.
func (s *Session) BaseConfidence() float64 {
	if len(s.ConfidenceProgression) == 0 {
		return 0
	}
	return s.ConfidenceProgression[0]
}

// CurrentConfidence is the latest value of the confidence progression.
func (s *Session) CurrentConfidence() float64 {
	if len(s.ConfidenceProgression) == 0 {
		return 0
	}
	return s.ConfidenceProgression[len(s.ConfidenceProgression)-1]
}

func (s *Session) question(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func (s *Session) answered(id string) bool {
	for _, r := range s.Responses {
		if r.QuestionID == id {
			return true
		}
	}
	return false
}

func (s *Session) stageResponses(st Stage) int {
	n := 0
	for _, r := range s.Responses {
		if r.Stage == st {
			n++
		}
	}
	return n
}

// pending returns the unanswered questions of the current stage.
func (s *Session) pending() []Question {
	var out []Question
	for _, q := range s.Questions {
		if q.Stage == s.Stage && !s.answered(q.ID) {
			out = append(out, q)
		}
	}
	return out
}

func (s *Session) clone() *Session {
	c := *s
	c.Collaborators = append([]string(nil), s.Collaborators...)
	c.Context = s.Context.Normalized()
	c.Assessment.Sources = append([]uncertainty.Source(nil), s.Assessment.Sources...)
	if s.Assessment.Intervals != nil {
		c.Assessment.Intervals = make(map[uncertainty.Dimension]uncertainty.Interval, len(s.Assessment.Intervals))
		for k, v := range s.Assessment.Intervals {
			c.Assessment.Intervals[k] = v
		}
	}
	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		q.FollowUps = append([]string(nil), q.FollowUps...)
		c.Questions[i] = q
	}
	c.Responses = make([]Response, len(s.Responses))
	for i, r := range s.Responses {
		r.Extra = copyStrings(r.Extra)
		c.Responses[i] = r
	}
	c.LearnedContext = make(map[string]map[string]string, len(s.LearnedContext))
	for k, v := range s.LearnedContext {
		c.LearnedContext[k] = copyStrings(v)
	}
	c.ConfidenceProgression = append([]float64(nil), s.ConfidenceProgression...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	// The request is immutable once created and is shared.
	return &c
}

func copyStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snapshot is the externally visible status of a session.
type Snapshot struct {
	SessionID             string                       `json:"session_id"`
	UserID                string                       `json:"user_id"`
	Domain                uncertainty.Domain           `json:"domain"`
	Strategy              uncertainty.Strategy         `json:"strategy"`
	Stage                 Stage                        `json:"stage"`
	Status                Status                       `json:"status"`
	EstimatedCompletion   float64                      `json:"estimated_completion"`
	QuestionsAsked        int                          `json:"questions_asked"`
	ResponsesReceived     int                          `json:"responses_received"`
	ConfidenceProgression []float64                    `json:"confidence_progression"`
	LearnedContext        map[string]map[string]string `json:"learned_context"`
	CreatedAt             time.Time                    `json:"created_at"`
	UpdatedAt             time.Time                    `json:"updated_at"`
	CompletedAt           *time.Time                   `json:"completed_at,omitempty"`
	ExpiresAt             time.Time                    `json:"expires_at"`
}

// SubmitResult is the outcome of SubmitResponse.
type SubmitResult struct {
	SessionID             string                       `json:"session_id"`
	Accepted              bool                         `json:"accepted"`
	Stage                 Stage                        `json:"stage"`
	Status                Status                       `json:"status"`
	EstimatedCompletion   float64                      `json:"estimated_completion"`
	Confidence            float64                      `json:"confidence"`
	ConfidenceImprovement float64                      `json:"confidence_improvement"`
	NextAction            NextAction                   `json:"next_action"`
	LearnedContext        map[string]map[string]string `json:"learned_context"`
}
