// Package engine exposes the request/response API of the collaboration
// engine: assessment, verification with engagement, clarification turns,
// session status and routing dry runs.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/clarify"
	"github.com/ziadkadry99/hitl/internal/metrics"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Notifier delivers engagement requests to the external transport.
type Notifier interface {
	Notify(ctx context.Context, req *routing.EngagementRequest) error
}

// Engine ties the assessor, the router and the session manager together.
// It is safe for concurrent use.
type Engine struct {
	assessor *uncertainty.Assessor
	router   *routing.Router
	sessions *clarify.Manager
	authz    *auth.Authorizer
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuthorizer replaces the default owner-only authorizer.
func WithAuthorizer(a *auth.Authorizer) Option {
	return func(e *Engine) {
		if a != nil {
			e.authz = a
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine.
func New(assessor *uncertainty.Assessor, router *routing.Router, sessions *clarify.Manager, opts ...Option) *Engine {
	e := &Engine{
		assessor: assessor,
		router:   router,
		sessions: sessions,
		authz:    auth.NewAuthorizer(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SessionRecorder forwards session lifecycle events to the router's
// history and counts them.
func SessionRecorder(r *routing.Router, m *metrics.Metrics) clarify.Recorder {
	return func(ctx context.Context, ev routing.Event) {
		r.Record(ctx, ev)
		switch ev.Kind {
		case routing.EventSessionStarted:
			m.ObserveSession(string(clarify.StatusActive))
		case routing.EventSessionCompleted:
			m.ObserveSession(string(clarify.StatusCompleted))
		case routing.EventSessionAbandoned:
			m.ObserveSession(string(clarify.StatusAbandoned))
		}
	}
}

// callerContext binds the context to the caller and resolves the domain
// when it was left unset. A failed classification leaves the domain empty
// so routing flags the fallback itself.
func (e *Engine) callerContext(ctx context.Context, id auth.Identity, text, sessionID string, c uncertainty.Context) uncertainty.Context {
	c.UserID = id.UserID
	if sessionID != "" {
		c.SessionID = sessionID
	}
	if c.Domain == "" {
		if d, failed := e.router.ResolveDomain(ctx, text, c); !failed {
			c.Domain = d
		}
	}
	return c
}

func (e *Engine) assess(ctx context.Context, text string, c uncertainty.Context) uncertainty.Assessment {
	a := e.assessor.Assess(ctx, text, c)
	e.metrics.ObserveAssessment(a)
	return a
}

// AssessUncertainty scores text without side effects.
func (e *Engine) AssessUncertainty(ctx context.Context, id auth.Identity, req AssessRequest) (uncertainty.Assessment, error) {
	if !id.Valid() {
		return uncertainty.Assessment{}, auth.ErrMissingIdentity
	}
	if err := check(req); err != nil {
		return uncertainty.Assessment{}, err
	}
	c := e.callerContext(ctx, id, req.Text, "", req.Context)
	return e.assess(ctx, req.Text, c), nil
}

// VerifyWithEngagement assesses text and, when a human is needed, routes it
// and opens a clarification session owned by the caller. A caller
// threshold can only add oversight: proceed is upgraded to a brief
// clarification once the overall score reaches it.
func (e *Engine) VerifyWithEngagement(ctx context.Context, id auth.Identity, req VerifyRequest) (*VerifyResult, error) {
	if !id.Valid() {
		return nil, auth.ErrMissingIdentity
	}
	if err := check(req); err != nil {
		return nil, err
	}
	c := e.callerContext(ctx, id, req.Text, req.SessionID, req.Context)
	a := e.assess(ctx, req.Text, c)

	routed := a
	if !routed.Recommendation.RequiresHuman() && req.EngagementThreshold > 0 && a.Overall >= req.EngagementThreshold {
		routed.Recommendation = uncertainty.StrategyBrief
	}
	if !routed.Recommendation.RequiresHuman() {
		return &VerifyResult{
			Assessment:      a,
			ConfidenceLevel: 1 - a.Overall,
		}, nil
	}

	er, err := e.router.Route(ctx, req.Text, routed, c)
	if err != nil {
		return nil, fmt.Errorf("routing output: %w", err)
	}
	e.metrics.ObserveEngagement(er)

	s, err := e.sessions.Start(ctx, req.Text, a, c,
		clarify.WithRequest(er),
		clarify.WithCollaborators(req.Collaborators...),
	)
	if err != nil {
		return nil, fmt.Errorf("starting clarification: %w", err)
	}
	questions, err := e.sessions.NextQuestions(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("generating questions: %w", err)
	}

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, er); err != nil {
			e.logger.Warn("notifying engagement request",
				zap.String("request_id", er.ID),
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
		}
	}

	return &VerifyResult{
		RequiresClarification:  true,
		Assessment:             a,
		ConfidenceLevel:        1 - a.Overall,
		EngagementStrategy:     er.Strategy,
		ClarificationSessionID: s.ID,
		InitialQuestions:       questions,
		EstimatedDuration:      er.EstimatedMinutes,
		Engagement:             er,
	}, nil
}

// authorized loads a session and checks the caller may act on it.
func (e *Engine) authorized(ctx context.Context, id auth.Identity, sessionID string) (*clarify.Session, error) {
	if !id.Valid() {
		return nil, auth.ErrMissingIdentity
	}
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := e.authz.Authorize(id, s); err != nil {
		e.logger.Info("clarification access denied",
			zap.String("session_id", sessionID),
			zap.String("user_id", id.UserID),
		)
		return nil, err
	}
	return s, nil
}

// ClarificationRespond records an answer. The result carries the next
// questions while the dialogue continues and the refined output once it
// has finished. A paused session only reports its status.
func (e *Engine) ClarificationRespond(ctx context.Context, id auth.Identity, req RespondRequest) (*RespondResult, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	s, err := e.authorized(ctx, id, req.SessionID)
	if err != nil {
		return nil, err
	}

	sub, err := e.sessions.SubmitResponse(ctx, s.ID, req.QuestionID, req.ResponseText, *req.Confidence, req.Extra)
	if err != nil {
		return nil, err
	}

	out := &RespondResult{
		SessionID:             sub.SessionID,
		Status:                sub.Status,
		Stage:                 sub.Stage,
		EstimatedCompletion:   sub.EstimatedCompletion,
		ConfidenceImprovement: sub.ConfidenceImprovement,
		LearnedContext:        sub.LearnedContext,
	}

	if sub.Accepted {
		e.metrics.ObserveResponse(s.Domain)
		if s.Request != nil {
			processed, err := e.router.ProcessResponse(ctx, s.Request, routing.HumanResponse{
				Text:       req.ResponseText,
				Confidence: *req.Confidence,
				Extra:      req.Extra,
			})
			if err != nil {
				return nil, fmt.Errorf("processing response: %w", err)
			}
			out.ResponseBoost = processed.ConfidenceBoost
			out.FollowUpNeeded = processed.FollowUpNeeded
			out.AuditDocumentation = processed.AuditDocumentation
			e.router.Record(ctx, routing.Event{
				Kind:      routing.EventResponseProcessed,
				RequestID: s.Request.ID,
				SessionID: s.ID,
				UserID:    id.UserID,
				Domain:    s.Domain,
				Strategy:  s.Strategy,
				Overall:   s.Assessment.Overall,
				Fallback:  s.Request.Fallback,
				Summary:   fmt.Sprintf("response to %s recorded (boost %.2f)", sub.Stage, processed.ConfidenceBoost),
			})
		}
	}

	if sub.Status == clarify.StatusPaused {
		return out, nil
	}
	if sub.Status == clarify.StatusActive {
		next, err := e.sessions.NextQuestions(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if len(next) > 0 {
			out.Continues = true
			out.NextQuestions = next
			return out, nil
		}
	}

	// Finished, either by this response or because no questions remain.
	snap, err := e.sessions.Snapshot(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	refined, err := e.sessions.GenerateRefinedOutput(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	out.Status = snap.Status
	out.Stage = snap.Stage
	out.EstimatedCompletion = snap.EstimatedCompletion
	out.LearnedContext = snap.LearnedContext
	out.RefinedOutput = refined
	return out, nil
}

// ClarificationStatus returns the session snapshot.
func (e *Engine) ClarificationStatus(ctx context.Context, id auth.Identity, sessionID string) (*clarify.Snapshot, error) {
	if _, err := e.authorized(ctx, id, sessionID); err != nil {
		return nil, err
	}
	return e.sessions.Snapshot(ctx, sessionID)
}

// NextQuestions returns the current round of questions.
func (e *Engine) NextQuestions(ctx context.Context, id auth.Identity, sessionID string) ([]clarify.Question, error) {
	if _, err := e.authorized(ctx, id, sessionID); err != nil {
		return nil, err
	}
	return e.sessions.NextQuestions(ctx, sessionID)
}

// RefinedOutput composes the output of a session. Sessions that ended
// early produce a partial output.
func (e *Engine) RefinedOutput(ctx context.Context, id auth.Identity, sessionID string) (*OutputResult, error) {
	if _, err := e.authorized(ctx, id, sessionID); err != nil {
		return nil, err
	}
	snap, err := e.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out, err := e.sessions.GenerateRefinedOutput(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &OutputResult{
		SessionID:     sessionID,
		Status:        snap.Status,
		Partial:       snap.Status != clarify.StatusCompleted,
		RefinedOutput: out,
	}, nil
}

// Abandon ends a session explicitly. It is idempotent.
func (e *Engine) Abandon(ctx context.Context, id auth.Identity, sessionID string) (*clarify.Snapshot, error) {
	if _, err := e.authorized(ctx, id, sessionID); err != nil {
		return nil, err
	}
	return e.sessions.Abandon(ctx, sessionID)
}

// Pause suspends a session until Resume is called.
func (e *Engine) Pause(ctx context.Context, id auth.Identity, sessionID string) (*clarify.Snapshot, error) {
	if _, err := e.authorized(ctx, id, sessionID); err != nil {
		return nil, err
	}
	return e.sessions.Pause(ctx, sessionID)
}

// Resume reactivates a paused session.
func (e *Engine) Resume(ctx context.Context, id auth.Identity, sessionID string) (*clarify.Snapshot, error) {
	if _, err := e.authorized(ctx, id, sessionID); err != nil {
		return nil, err
	}
	return e.sessions.Resume(ctx, sessionID)
}

// SimulateEngagement previews routing without creating a session or
// writing history.
func (e *Engine) SimulateEngagement(ctx context.Context, id auth.Identity, req SimulateRequest) (*routing.EngagementRequest, error) {
	if !id.Valid() {
		return nil, auth.ErrMissingIdentity
	}
	if err := check(req); err != nil {
		return nil, err
	}
	c := e.callerContext(ctx, id, req.Text, "", req.Context)
	var a uncertainty.Assessment
	if req.Assessment != nil {
		a = e.assessor.Rescore(*req.Assessment, c)
	} else {
		a = e.assessor.Assess(ctx, req.Text, c)
	}
	return e.router.Preview(ctx, req.Text, a, c)
}

// History lists engagement events. Callers without a reviewer role only
// see their own events.
func (e *Engine) History(ctx context.Context, id auth.Identity, f routing.HistoryFilter) ([]routing.Event, error) {
	if !id.Valid() {
		return nil, auth.ErrMissingIdentity
	}
	h := e.router.History()
	if h == nil {
		return []routing.Event{}, nil
	}
	if !e.authz.IsReviewer(id) {
		f.UserID = id.UserID
	}
	events, err := h.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	if events == nil {
		events = []routing.Event{}
	}
	return events, nil
}

// Stats summarizes routing decisions visible to the caller.
func (e *Engine) Stats(ctx context.Context, id auth.Identity, f routing.HistoryFilter) ([]routing.StrategyStat, error) {
	f.Kind = routing.EventRouted
	f.Limit = 0
	events, err := e.History(ctx, id, f)
	if err != nil {
		return nil, err
	}
	return routing.StrategyStats(events), nil
}

// Sweep removes sessions older than the retention window.
func (e *Engine) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	return e.sessions.Sweep(ctx, retention)
}
