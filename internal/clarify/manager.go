package clarify

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Recorder receives session lifecycle events for the engagement history.
type Recorder func(ctx context.Context, e routing.Event)

// Manager runs clarification sessions. All mutations of one session are
// serialized; different sessions proceed in parallel.
type Manager struct {
	store    Store
	profiles uncertainty.Profiles
	settings Settings
	locks    *keyedMutex
	record   Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithSettings(s Settings) ManagerOption {
	return func(m *Manager) { m.settings = s }
}

func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) { m.record = r }
}

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager persisting sessions in store.
func NewManager(store Store, profiles uncertainty.Profiles, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		profiles: profiles,
		settings: DefaultSettings(),
		locks:    newKeyedMutex(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Settings returns the dialogue settings in use.
func (m *Manager) Settings() Settings { return m.settings }

type startOptions struct {
	strategy      uncertainty.Strategy
	request       *routing.EngagementRequest
	collaborators []string
}

// StartOption customizes Start.
type StartOption func(*startOptions)

// WithStrategy overrides the strategy taken from the assessment.
func WithStrategy(s uncertainty.Strategy) StartOption {
	return func(o *startOptions) { o.strategy = s }
}

// WithRequest attaches the engagement request the session answers.
func WithRequest(r *routing.EngagementRequest) StartOption {
	return func(o *startOptions) { o.request = r }
}

// WithCollaborators lists user ids allowed to act on the session besides
// its owner.
func WithCollaborators(ids ...string) StartOption {
	return func(o *startOptions) { o.collaborators = ids }
}

// Start creates a session in the initial stage with no questions asked.
func (m *Manager) Start(ctx context.Context, output string, a uncertainty.Assessment, c uncertainty.Context, opts ...StartOption) (*Session, error) {
	if strings.TrimSpace(output) == "" {
		return nil, ErrEmptyOutput
	}
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}

	c = c.Normalized()
	domain := c.Domain
	strategy := a.Recommendation
	if o.request != nil {
		domain = o.request.Domain
		strategy = o.request.Strategy
	}
	if o.strategy != "" {
		strategy = o.strategy
	}
	if !strategy.Valid() {
		strategy = uncertainty.StrategyBrief
	}
	if domain == "" {
		domain = uncertainty.DomainConversational
	}
	c.Domain = domain

	now := m.now()
	s := &Session{
		ID:                    uuid.New().String(),
		UserID:                c.UserID,
		Collaborators:         append([]string(nil), o.collaborators...),
		OriginalOutput:        output,
		Assessment:            a,
		Context:               c,
		Domain:                domain,
		Strategy:              strategy,
		Request:               o.request,
		Stage:                 StageInitialContext,
		Status:                StatusActive,
		Questions:             []Question{},
		Responses:             []Response{},
		LearnedContext:        map[string]map[string]string{},
		ConfidenceProgression: []float64{uncertainty.Clamp(a.Confidence)},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("storing new session: %w", err)
	}

	m.emit(ctx, s, routing.EventSessionStarted, "clarification session started")
	m.logger.Info("clarification session started",
		zap.String("session_id", s.ID),
		zap.String("domain", string(s.Domain)),
		zap.String("strategy", string(s.Strategy)),
		zap.Float64("overall", a.Overall),
	)
	return s.clone(), nil
}

// load fetches a session and applies the lazy timeout. It reports whether
// the session changed and must be saved.
func (m *Manager) load(ctx context.Context, id string) (*Session, bool, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if s.Status.Terminal() {
		return s, false, nil
	}
	if m.now().Sub(s.CreatedAt) > m.settings.Timeout() {
		m.abandon(s, "timeout")
		return s, true, nil
	}
	return s, false, nil
}

func (m *Manager) abandon(s *Session, reason string) {
	s.Status = StatusAbandoned
	s.UpdatedAt = m.now()
	m.logger.Info("clarification session abandoned",
		zap.String("session_id", s.ID),
		zap.String("reason", reason),
		zap.Int("responses", len(s.Responses)),
	)
}

func (m *Manager) save(ctx context.Context, s *Session, prevStatus Status) error {
	if err := m.store.Put(ctx, s); err != nil {
		return fmt.Errorf("saving session %s: %w", s.ID, err)
	}
	if prevStatus != s.Status {
		switch s.Status {
		case StatusCompleted:
			m.emit(ctx, s, routing.EventSessionCompleted, fmt.Sprintf("completed after %d responses", len(s.Responses)))
		case StatusAbandoned:
			m.emit(ctx, s, routing.EventSessionAbandoned, fmt.Sprintf("abandoned after %d responses", len(s.Responses)))
		}
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, s *Session, kind routing.EventKind, summary string) {
	if m.record == nil {
		return
	}
	e := routing.Event{
		Kind:      kind,
		SessionID: s.ID,
		UserID:    s.UserID,
		Domain:    s.Domain,
		Strategy:  s.Strategy,
		Overall:   s.Assessment.Overall,
		Fallback:  s.Assessment.Fallback || (s.Request != nil && s.Request.Fallback),
		Summary:   summary,
	}
	if s.Request != nil {
		e.RequestID = s.Request.ID
	}
	m.record(ctx, e)
}

// Get returns a copy of the session after applying the timeout rule.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, changed, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := m.save(ctx, s, StatusActive); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Snapshot returns the externally visible status of a session.
func (m *Manager) Snapshot(ctx context.Context, id string) (*Snapshot, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.snapshot(s), nil
}

func (m *Manager) snapshot(s *Session) *Snapshot {
	c := s.clone()
	return &Snapshot{
		SessionID:             c.ID,
		UserID:                c.UserID,
		Domain:                c.Domain,
		Strategy:              c.Strategy,
		Stage:                 c.Stage,
		Status:                c.Status,
		EstimatedCompletion:   c.EstimatedCompletion,
		QuestionsAsked:        len(c.Questions),
		ResponsesReceived:     len(c.Responses),
		ConfidenceProgression: c.ConfidenceProgression,
		LearnedContext:        c.LearnedContext,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
		CompletedAt:           c.CompletedAt,
		ExpiresAt:             c.CreatedAt.Add(m.settings.Timeout()),
	}
}

// NextQuestions returns the questions for the current round. Unanswered
// questions of the current stage are returned again before new ones are
// generated. Finished sessions get an empty list.
func (m *Manager) NextQuestions(ctx context.Context, id string) ([]Question, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, changed, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := StatusActive
	if !changed {
		prev = s.Status
	}
	if s.Status != StatusActive {
		if changed {
			if err := m.save(ctx, s, prev); err != nil {
				return nil, err
			}
		}
		return []Question{}, nil
	}

	budget := m.settings.questionBudget(s.Strategy)
	remaining := m.settings.MaxTotalQuestions - len(s.Responses)

	var out []Question
	for {
		m.advance(s)
		if s.Stage == StageCompletion {
			m.complete(s)
			break
		}
		if p := s.pending(); len(p) > 0 {
			out = p
			break
		}
		n := min(budget, remaining)
		if n <= 0 {
			break
		}
		out = m.generate(s, n)
		if len(out) > 0 {
			break
		}
		// The bank has nothing new for this stage.
		s.Stage = s.Stage.Next()
		changed = true
	}

	if len(out) > 0 || changed || s.Status != prev {
		s.UpdatedAt = m.now()
		if err := m.save(ctx, s, prev); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []Question{}
	}
	return out, nil
}

// advance moves past every stage that already has enough responses.
func (m *Manager) advance(s *Session) {
	for s.Stage != StageCompletion && s.stageResponses(s.Stage) >= m.settings.MinResponsesPerStage {
		s.Stage = s.Stage.Next()
	}
}

func (m *Manager) complete(s *Session) {
	if s.Status == StatusCompleted {
		return
	}
	now := m.now()
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
}

// generate appends up to n new questions for the current stage, skipping
// any text already asked in the session.
func (m *Manager) generate(s *Session, n int) []Question {
	asked := make(map[string]bool, len(s.Questions))
	for _, q := range s.Questions {
		asked[q.Text] = true
	}
	now := m.now()
	var out []Question
	for _, t := range candidates(s.Stage, s.Domain, s.Assessment) {
		if len(out) == n {
			break
		}
		if asked[t.Text] {
			continue
		}
		asked[t.Text] = true
		q := Question{
			ID:          uuid.New().String(),
			Text:        t.Text,
			Type:        t.Type,
			Stage:       s.Stage,
			Priority:    t.Priority,
			Options:     append([]string(nil), t.Options...),
			ContextHint: t.Hint,
			FollowUps:   append([]string(nil), t.FollowUps...),
			AskedAt:     now,
		}
		out = append(out, q)
	}
	s.Questions = append(s.Questions, out...)
	return out
}

// SubmitResponse records an answer. Unknown or already answered questions
// are rejected without changing the session. Finished sessions are
// reported through the result's status and next action.
func (m *Manager) SubmitResponse(ctx context.Context, id, questionID, text string, confidence float64, extra map[string]string) (*SubmitResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		return nil, ErrInvalidConfidence
	}

	unlock := m.locks.Lock(id)
	defer unlock()

	s, changed, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusActive {
		if changed {
			if err := m.save(ctx, s, StatusActive); err != nil {
				return nil, err
			}
		}
		return m.result(s), nil
	}

	q, ok := s.question(questionID)
	if !ok {
		return nil, ErrUnknownQuestion
	}
	if s.answered(questionID) {
		return nil, ErrAlreadyAnswered
	}

	now := m.now()
	s.Responses = append(s.Responses, Response{
		QuestionID: q.ID,
		Text:       strings.TrimSpace(text),
		Confidence: confidence,
		Extra:      copyStrings(extra),
		Stage:      q.Stage,
		Timestamp:  now,
	})
	bucket := q.Stage.Bucket()
	if s.LearnedContext[bucket] == nil {
		s.LearnedContext[bucket] = map[string]string{}
	}
	s.LearnedContext[bucket][q.Text] = strings.TrimSpace(text)

	s.ConfidenceProgression = append(s.ConfidenceProgression, m.nextConfidence(s))
	s.EstimatedCompletion = m.estimateCompletion(s)
	m.advance(s)

	profile, _ := m.profiles.For(s.Domain)
	if s.EstimatedCompletion >= profile.CompletionThreshold ||
		s.Stage == StageCompletion ||
		len(s.Responses) >= m.settings.MaxTotalQuestions {
		m.complete(s)
	}
	s.UpdatedAt = now

	if err := m.save(ctx, s, StatusActive); err != nil {
		return nil, err
	}
	m.logger.Debug("clarification response recorded",
		zap.String("session_id", s.ID),
		zap.String("stage", string(s.Stage)),
		zap.Float64("estimated_completion", s.EstimatedCompletion),
		zap.String("status", string(s.Status)),
	)
	res := m.result(s)
	res.Accepted = true
	return res, nil
}

// nextConfidence applies diminishing returns over all responses so far and
// caps the step any single response can add.
func (m *Manager) nextConfidence(s *Session) float64 {
	base := s.BaseConfidence()
	var sum float64
	for _, r := range s.Responses {
		sum += r.Confidence * m.settings.ConfidenceStep
	}
	n := float64(len(s.Responses))
	v := math.Min(1, base+sum/(1+m.settings.DiminishingRate*n))
	prev := s.CurrentConfidence()
	return uncertainty.Clamp(math.Min(v, prev+m.settings.MaxSingleBoost))
}

// estimateCompletion blends answered volume with confidence gain. It never
// goes below the previous estimate.
func (m *Manager) estimateCompletion(s *Session) float64 {
	gain := s.CurrentConfidence() - s.BaseConfidence()
	volume := float64(len(s.Responses)) / float64(m.settings.MaxTotalQuestions)
	v := m.settings.CompletionResponseWeight*math.Min(1, volume) +
		m.settings.CompletionConfidenceWeight*uncertainty.Clamp(gain/m.settings.ConfidenceGainTarget)
	return math.Max(s.EstimatedCompletion, uncertainty.Clamp(v))
}

func (m *Manager) result(s *Session) *SubmitResult {
	action := ActionContinue
	switch s.Status {
	case StatusPaused:
		action = ActionResume
	case StatusCompleted:
		action = ActionRefinedOutput
	case StatusAbandoned:
		action = ActionPartialOutput
	}
	return &SubmitResult{
		SessionID:             s.ID,
		Stage:                 s.Stage,
		Status:                s.Status,
		EstimatedCompletion:   s.EstimatedCompletion,
		Confidence:            s.CurrentConfidence(),
		ConfidenceImprovement: s.CurrentConfidence() - s.BaseConfidence(),
		NextAction:            action,
		LearnedContext:        s.clone().LearnedContext,
	}
}

// Abandon marks an active session abandoned. Repeated calls and calls on
// completed sessions leave the session as it is.
func (m *Manager) Abandon(ctx context.Context, id string) (*Snapshot, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, changed, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Status.Terminal() {
		m.abandon(s, "requested")
		changed = true
	}
	if changed {
		if err := m.save(ctx, s, StatusActive); err != nil {
			return nil, err
		}
	}
	return m.snapshot(s), nil
}

// Pause suspends an active session. A paused session asks no questions and
// accepts no responses until resumed, and its timeout keeps running.
// Pausing a session that is not active leaves it as it is.
func (m *Manager) Pause(ctx context.Context, id string) (*Snapshot, error) {
	return m.transition(ctx, id, StatusActive, StatusPaused, "clarification session paused")
}

// Resume reactivates a paused session. Resuming a session that is not
// paused leaves it as it is.
func (m *Manager) Resume(ctx context.Context, id string) (*Snapshot, error) {
	return m.transition(ctx, id, StatusPaused, StatusActive, "clarification session resumed")
}

func (m *Manager) transition(ctx context.Context, id string, from, to Status, msg string) (*Snapshot, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	s, changed, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := s.Status
	if changed {
		prev = StatusActive
	}
	if s.Status == from {
		s.Status = to
		s.UpdatedAt = m.now()
		changed = true
		m.logger.Info(msg,
			zap.String("session_id", s.ID),
			zap.String("stage", string(s.Stage)),
		)
	}
	if changed {
		if err := m.save(ctx, s, prev); err != nil {
			return nil, err
		}
	}
	return m.snapshot(s), nil
}

// GenerateRefinedOutput composes the refined output from what the session
// has learned. Abandoned sessions yield a partial output.
func (m *Manager) GenerateRefinedOutput(ctx context.Context, id string) (string, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return Compose(s), nil
}

// Sweep removes sessions past the retention window.
func (m *Manager) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	n, err := m.store.Expire(ctx, m.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("expired clarification sessions", zap.Int("count", n))
	}
	return n, nil
}
