package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/clarify"
	"github.com/ziadkadry99/hitl/internal/metrics"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

const hedged = "I'm not sure which approach is better"

// plain scores as proceed_with_confidence with the quiet assessor.
const plain = "The service listens on port 8080."

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixedCoverage float64

func (f fixedCoverage) Coverage(context.Context, uncertainty.Input) (float64, error) {
	return float64(f), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []*routing.EngagementRequest
}

func (n *recordingNotifier) Notify(_ context.Context, req *routing.EngagementRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reqs)
}

type harness struct {
	engine   *Engine
	history  *routing.MemoryHistory
	clock    *testClock
	notifier *recordingNotifier
	registry *prometheus.Registry
}

type harnessConfig struct {
	settings     clarify.Settings
	assessorOpts []uncertainty.Option
}

type harnessOption func(*harnessConfig)

func withSettings(s clarify.Settings) harnessOption {
	return func(c *harnessConfig) { c.settings = s }
}

// quietAssessor removes probe disagreement and knowledge gaps so plain
// statements score low.
func quietAssessor() harnessOption {
	return func(c *harnessConfig) {
		c.assessorOpts = append(c.assessorOpts, uncertainty.WithProbes(), uncertainty.WithCoverage(fixedCoverage(1)))
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{settings: clarify.DefaultSettings()}
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	profiles := uncertainty.DefaultProfiles()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	history := routing.NewMemoryHistory()

	assessor := uncertainty.NewAssessor(profiles, append([]uncertainty.Option{uncertainty.WithClock(clock.Now)}, cfg.assessorOpts...)...)
	router := routing.New(profiles, routing.WithHistory(history), routing.WithClock(clock.Now))
	sessions := clarify.NewManager(clarify.NewMemoryStore(), profiles,
		clarify.WithSettings(cfg.settings),
		clarify.WithClock(clock.Now),
		clarify.WithRecorder(SessionRecorder(router, m)),
	)
	notifier := &recordingNotifier{}
	e := New(assessor, router, sessions,
		WithAuthorizer(auth.NewAuthorizer("reviewer")),
		WithNotifier(notifier),
		WithMetrics(m),
	)
	return &harness{engine: e, history: history, clock: clock, notifier: notifier, registry: reg}
}

var (
	alice    = auth.Identity{UserID: "alice"}
	bob      = auth.Identity{UserID: "bob"}
	reviewer = auth.Identity{UserID: "rita", Roles: []string{"reviewer"}}
)

func confidence(v float64) *float64 { return &v }

func TestAssessUncertaintyClassifiesDomain(t *testing.T) {
	h := newHarness(t)
	a, err := h.engine.AssessUncertainty(context.Background(), alice, AssessRequest{Text: hedged})
	require.NoError(t, err)
	assert.Equal(t, uncertainty.DomainConversational, a.Domain)
	assert.Equal(t, uncertainty.StrategyBrief, a.Recommendation)
	assert.True(t, a.HasSource(uncertainty.SourceMultipleInterpretations))

	// No side effects beyond metrics.
	events, err := h.history.List(context.Background(), routing.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, h.notifier.count())
}

func TestAssessUncertaintyValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.AssessUncertainty(ctx, auth.Identity{}, AssessRequest{Text: hedged})
	assert.ErrorIs(t, err, auth.ErrMissingIdentity)

	_, err = h.engine.AssessUncertainty(ctx, alice, AssessRequest{Text: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.engine.AssessUncertainty(ctx, alice, AssessRequest{
		Text:    hedged,
		Context: uncertainty.Context{Stakes: "extreme"},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, "stakes")
}

func TestVerifyProceedsWithoutClarification(t *testing.T) {
	h := newHarness(t, quietAssessor())
	res, err := h.engine.VerifyWithEngagement(context.Background(), alice, VerifyRequest{Text: plain})
	require.NoError(t, err)

	assert.False(t, res.RequiresClarification)
	assert.Equal(t, uncertainty.StrategyProceed, res.Assessment.Recommendation)
	assert.InDelta(t, 1-res.Assessment.Overall, res.ConfidenceLevel, 1e-9)
	assert.Empty(t, res.ClarificationSessionID)
	assert.Equal(t, 0, h.notifier.count())
}

func TestVerifyThresholdOnlyAddsOversight(t *testing.T) {
	h := newHarness(t, quietAssessor())
	res, err := h.engine.VerifyWithEngagement(context.Background(), alice, VerifyRequest{
		Text:                plain,
		EngagementThreshold: 0.05,
	})
	require.NoError(t, err)

	require.True(t, res.RequiresClarification)
	assert.Equal(t, uncertainty.StrategyProceed, res.Assessment.Recommendation)
	assert.Equal(t, uncertainty.StrategyBrief, res.EngagementStrategy)
	assert.Len(t, res.InitialQuestions, 1)
}

func TestVerifyStartsBriefClarification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{SessionID: "chat-1", Text: hedged})
	require.NoError(t, err)

	require.True(t, res.RequiresClarification)
	assert.Equal(t, uncertainty.StrategyBrief, res.EngagementStrategy)
	assert.NotEmpty(t, res.ClarificationSessionID)
	assert.Positive(t, res.EstimatedDuration)
	require.Len(t, res.InitialQuestions, 1)
	assert.Equal(t, clarify.StageInitialContext, res.InitialQuestions[0].Stage)
	assert.Equal(t, "Which of the possible readings of your request did you mean?", res.InitialQuestions[0].Text)

	require.NotNil(t, res.Engagement)
	assert.Equal(t, "alice", res.Engagement.UserID)
	assert.Equal(t, "chat-1", res.Engagement.SessionID)
	assert.Equal(t, 1, h.notifier.count())

	events, err := h.engine.History(ctx, alice, routing.HistoryFilter{})
	require.NoError(t, err)
	kinds := make([]routing.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.ElementsMatch(t, []routing.EventKind{routing.EventRouted, routing.EventSessionStarted}, kinds)

	n, err := testutil.GatherAndCount(h.registry, "hitl_router_engagements_total", "hitl_clarify_sessions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVerifyComplianceRoutesToExpert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{
		Text:    hedged,
		Context: uncertainty.Context{Domain: uncertainty.DomainCompliance},
	})
	require.NoError(t, err)
	require.True(t, res.RequiresClarification)
	assert.Equal(t, uncertainty.StrategyExpert, res.EngagementStrategy)
	assert.Equal(t, routing.PriorityHigh, res.Engagement.Priority)
	assert.Equal(t, routing.ModeHybrid, res.Engagement.Mode)
	require.NotEmpty(t, res.InitialQuestions)

	out, err := h.engine.ClarificationRespond(ctx, alice, RespondRequest{
		SessionID:    res.ClarificationSessionID,
		QuestionID:   res.InitialQuestions[0].ID,
		ResponseText: "Under GDPR we may keep the records for 30 days. Risk tolerance is low.",
		Confidence:   confidence(0.9),
	})
	require.NoError(t, err)
	require.NotNil(t, out.AuditDocumentation)
	assert.Equal(t, res.Engagement.ID, out.AuditDocumentation.RequestID)
	assert.NotEmpty(t, out.AuditDocumentation.ResponseDigest)

	audits, err := h.engine.History(ctx, alice, routing.HistoryFilter{Kind: routing.EventComplianceAudit})
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestRespondContinuesWithNextQuestions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{Text: hedged})
	require.NoError(t, err)

	out, err := h.engine.ClarificationRespond(ctx, alice, RespondRequest{
		SessionID:    res.ClarificationSessionID,
		QuestionID:   res.InitialQuestions[0].ID,
		ResponseText: "The faster one",
		Confidence:   confidence(0.8),
	})
	require.NoError(t, err)
	assert.True(t, out.Continues)
	assert.Equal(t, clarify.StatusActive, out.Status)
	require.Len(t, out.NextQuestions, 1)
	assert.NotEqual(t, res.InitialQuestions[0].ID, out.NextQuestions[0].ID)
	assert.Equal(t, "The faster one", out.LearnedContext[clarify.BucketContext][res.InitialQuestions[0].Text])
	assert.Empty(t, out.RefinedOutput)

	processed, err := h.engine.History(ctx, alice, routing.HistoryFilter{Kind: routing.EventResponseProcessed})
	require.NoError(t, err)
	assert.Len(t, processed, 1)
}

func TestRespondFinishesWithRefinedOutput(t *testing.T) {
	settings := clarify.DefaultSettings()
	settings.MaxTotalQuestions = 1
	h := newHarness(t, withSettings(settings))
	ctx := context.Background()

	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{Text: hedged})
	require.NoError(t, err)

	out, err := h.engine.ClarificationRespond(ctx, alice, RespondRequest{
		SessionID:    res.ClarificationSessionID,
		QuestionID:   res.InitialQuestions[0].ID,
		ResponseText: "The faster one",
		Confidence:   confidence(0.8),
	})
	require.NoError(t, err)
	assert.False(t, out.Continues)
	assert.Equal(t, clarify.StatusCompleted, out.Status)
	assert.Contains(t, out.RefinedOutput, hedged)
	assert.Contains(t, out.RefinedOutput, "The faster one")
	assert.Positive(t, out.ConfidenceImprovement)

	output, err := h.engine.RefinedOutput(ctx, alice, res.ClarificationSessionID)
	require.NoError(t, err)
	assert.False(t, output.Partial)
	assert.Equal(t, out.RefinedOutput, output.RefinedOutput)
}

func TestRespondAfterTimeoutReturnsPartialOutput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{Text: hedged})
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)
	out, err := h.engine.ClarificationRespond(ctx, alice, RespondRequest{
		SessionID:    res.ClarificationSessionID,
		QuestionID:   res.InitialQuestions[0].ID,
		ResponseText: "Too late",
		Confidence:   confidence(0.8),
	})
	require.NoError(t, err)
	assert.False(t, out.Continues)
	assert.Equal(t, clarify.StatusAbandoned, out.Status)
	// Nothing was learned, so the original output comes back unchanged.
	assert.Equal(t, hedged, out.RefinedOutput)

	qs, err := h.engine.NextQuestions(ctx, alice, res.ClarificationSessionID)
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestRespondRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{Text: hedged})
	require.NoError(t, err)
	sid := res.ClarificationSessionID
	qid := res.InitialQuestions[0].ID

	tests := []struct {
		name string
		req  RespondRequest
		want error
	}{
		{"missing confidence", RespondRequest{SessionID: sid, QuestionID: qid, ResponseText: "x"}, ErrInvalidInput},
		{"confidence too high", RespondRequest{SessionID: sid, QuestionID: qid, ResponseText: "x", Confidence: confidence(1.5)}, ErrInvalidInput},
		{"blank text", RespondRequest{SessionID: sid, QuestionID: qid, ResponseText: " ", Confidence: confidence(0.5)}, ErrInvalidInput},
		{"unknown question", RespondRequest{SessionID: sid, QuestionID: "nope", ResponseText: "x", Confidence: confidence(0.5)}, clarify.ErrUnknownQuestion},
		{"unknown session", RespondRequest{SessionID: "nope", QuestionID: qid, ResponseText: "x", Confidence: confidence(0.5)}, clarify.ErrSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.ClarificationRespond(ctx, alice, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	snap, err := h.engine.ClarificationStatus(ctx, alice, sid)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.QuestionsAsked)
	assert.Equal(t, 0, snap.ResponsesReceived)
	assert.Equal(t, clarify.StageInitialContext, snap.Stage)
}

func TestSessionAccessControl(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{
		Text:          hedged,
		Collaborators: []string{"carol"},
	})
	require.NoError(t, err)
	sid := res.ClarificationSessionID

	_, err = h.engine.ClarificationStatus(ctx, bob, sid)
	assert.ErrorIs(t, err, auth.ErrAccessDenied)

	_, err = h.engine.ClarificationStatus(ctx, auth.Identity{}, sid)
	assert.ErrorIs(t, err, auth.ErrMissingIdentity)

	_, err = h.engine.ClarificationStatus(ctx, bob, "missing")
	assert.ErrorIs(t, err, clarify.ErrSessionNotFound)

	for _, id := range []auth.Identity{alice, {UserID: "carol"}, reviewer} {
		snap, err := h.engine.ClarificationStatus(ctx, id, sid)
		require.NoError(t, err, id.UserID)
		assert.Equal(t, "alice", snap.UserID)
	}

	_, err = h.engine.Abandon(ctx, bob, sid)
	assert.ErrorIs(t, err, auth.ErrAccessDenied)
}

func TestAbandonIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{Text: hedged})
	require.NoError(t, err)

	first, err := h.engine.Abandon(ctx, alice, res.ClarificationSessionID)
	require.NoError(t, err)
	second, err := h.engine.Abandon(ctx, alice, res.ClarificationSessionID)
	require.NoError(t, err)
	assert.Equal(t, clarify.StatusAbandoned, first.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)

	out, err := h.engine.RefinedOutput(ctx, alice, res.ClarificationSessionID)
	require.NoError(t, err)
	assert.True(t, out.Partial)

	abandoned, err := h.engine.History(ctx, alice, routing.HistoryFilter{Kind: routing.EventSessionAbandoned})
	require.NoError(t, err)
	assert.Len(t, abandoned, 1)
}

func TestSimulateEngagementHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	preview, err := h.engine.SimulateEngagement(ctx, alice, SimulateRequest{Text: hedged})
	require.NoError(t, err)
	assert.Equal(t, uncertainty.StrategyBrief, preview.Strategy)
	assert.NotEmpty(t, preview.Prompt)

	given := uncertainty.Assessment{Overall: 0.45, Recommendation: uncertainty.StrategyExpert, Domain: uncertainty.DomainCompliance}
	preview, err = h.engine.SimulateEngagement(ctx, alice, SimulateRequest{
		Text:       "Retain the records for seven years.",
		Context:    uncertainty.Context{Domain: uncertainty.DomainCompliance},
		Assessment: &given,
	})
	require.NoError(t, err)
	assert.Equal(t, uncertainty.StrategyExpert, preview.Strategy)
	assert.Equal(t, routing.PriorityHigh, preview.Priority)

	events, err := h.history.List(ctx, routing.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, h.notifier.count())
}

func TestPausedSessionDefersResponses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{Text: hedged})
	require.NoError(t, err)
	sid := res.ClarificationSessionID

	_, err = h.engine.Pause(ctx, bob, sid)
	assert.ErrorIs(t, err, auth.ErrAccessDenied)

	snap, err := h.engine.Pause(ctx, alice, sid)
	require.NoError(t, err)
	assert.Equal(t, clarify.StatusPaused, snap.Status)

	conf := 0.8
	req := RespondRequest{SessionID: sid, QuestionID: res.InitialQuestions[0].ID, ResponseText: "The faster one", Confidence: &conf}
	out, err := h.engine.ClarificationRespond(ctx, alice, req)
	require.NoError(t, err)
	assert.Equal(t, clarify.StatusPaused, out.Status)
	assert.False(t, out.Continues)
	assert.Empty(t, out.RefinedOutput)
	assert.Empty(t, out.NextQuestions)

	snap, err = h.engine.Resume(ctx, alice, sid)
	require.NoError(t, err)
	assert.Equal(t, clarify.StatusActive, snap.Status)

	out, err = h.engine.ClarificationRespond(ctx, alice, req)
	require.NoError(t, err)
	assert.True(t, out.Continues || out.RefinedOutput != "")
	assert.Len(t, out.LearnedContext, 1)
}

func TestSimulateEngagementRescoresSuppliedAssessment(t *testing.T) {
	h := newHarness(t)
	given := uncertainty.Assessment{Epistemic: -3, Aleatoric: 4, Confidence: 2, Overall: 1.7}
	preview, err := h.engine.SimulateEngagement(context.Background(), alice, SimulateRequest{
		Text:       "Refactor the api.",
		Context:    uncertainty.Context{Domain: uncertainty.DomainTechnical},
		Assessment: &given,
	})
	require.NoError(t, err)

	a := preview.Assessment
	for _, v := range []float64{a.Epistemic, a.Aleatoric, a.Confidence, a.Overall} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.InDelta(t, 0.5, a.Overall, 1e-9)
	assert.Equal(t, uncertainty.StrategyDialogue, preview.Strategy)
	assert.Equal(t, -3.0, given.Epistemic, "caller's assessment is not modified")
}

func TestHistoryIsScopedToCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{Text: hedged})
	require.NoError(t, err)
	_, err = h.engine.VerifyWithEngagement(ctx, bob, VerifyRequest{Text: hedged})
	require.NoError(t, err)

	mine, err := h.engine.History(ctx, alice, routing.HistoryFilter{UserID: "bob"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, ev := range mine {
		assert.Equal(t, "alice", ev.UserID)
	}

	all, err := h.engine.History(ctx, reviewer, routing.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	stats, err := h.engine.Stats(ctx, reviewer, routing.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, uncertainty.StrategyBrief, stats[0].Strategy)
}

func TestSweepRemovesFinishedSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.engine.VerifyWithEngagement(ctx, alice, VerifyRequest{Text: hedged})
	require.NoError(t, err)
	_, err = h.engine.Abandon(ctx, alice, res.ClarificationSessionID)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)
	n, err := h.engine.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = h.engine.ClarificationStatus(ctx, alice, res.ClarificationSessionID)
	assert.ErrorIs(t, err, clarify.ErrSessionNotFound)
}
