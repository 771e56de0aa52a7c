package routing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

var (
	ErrEmptyOutput       = errors.New("output is empty")
	ErrEmptyResponse     = errors.New("response text is empty")
	ErrInvalidConfidence = errors.New("confidence must be within [0,1]")
	ErrNilRequest        = errors.New("engagement request is nil")
)

// Settings tunes response processing.
type Settings struct {
	// MaxConfidenceBoost caps the boost any single response can produce.
	MaxConfidenceBoost           float64 `yaml:"max_confidence_boost" koanf:"max_confidence_boost" json:"max_confidence_boost"`
	BoostFactor                  float64 `yaml:"boost_factor" koanf:"boost_factor" json:"boost_factor"`
	ComplianceBoostFactor        float64 `yaml:"compliance_boost_factor" koanf:"compliance_boost_factor" json:"compliance_boost_factor"`
	FollowUpConfidence           float64 `yaml:"follow_up_confidence" koanf:"follow_up_confidence" json:"follow_up_confidence"`
	ComplianceFollowUpConfidence float64 `yaml:"compliance_follow_up_confidence" koanf:"compliance_follow_up_confidence" json:"compliance_follow_up_confidence"`
}

// DefaultSettings returns the stock response-processing settings.
func DefaultSettings() Settings {
	return Settings{
		MaxConfidenceBoost:           0.15,
		BoostFactor:                  0.3,
		ComplianceBoostFactor:        0.2,
		FollowUpConfidence:           0.6,
		ComplianceFollowUpConfidence: 0.8,
	}
}

// Router turns assessments into engagement requests.
type Router struct {
	profiles   uncertainty.Profiles
	classifier DomainClassifier
	history    History
	settings   Settings
	handlers   map[uncertainty.Domain]handler
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Router.
type Option func(*Router)

func WithClassifier(c DomainClassifier) Option {
	return func(r *Router) {
		if c != nil {
			r.classifier = c
		}
	}
}

func WithHistory(h History) Option {
	return func(r *Router) { r.history = h }
}

func WithSettings(s Settings) Option {
	return func(r *Router) { r.settings = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a router over the given domain profiles.
func New(profiles uncertainty.Profiles, opts ...Option) *Router {
	r := &Router{
		profiles:   profiles,
		classifier: NewKeywordClassifier(DefaultTriggers()),
		settings:   DefaultSettings(),
		handlers:   defaultHandlers(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveDomain returns c.Domain when set, otherwise the classified domain.
// A classification failure resolves to conversational with fallback set.
func (r *Router) ResolveDomain(ctx context.Context, output string, c uncertainty.Context) (uncertainty.Domain, bool) {
	if c.Domain != "" {
		return c.Domain, false
	}
	d, err := r.classifier.Classify(ctx, output)
	if err != nil {
		r.logger.Warn("domain classification failed, using conversational", zap.Error(err))
		return uncertainty.DomainConversational, true
	}
	return d.Domain, false
}

// Route builds an engagement request and records it in the history.
func (r *Router) Route(ctx context.Context, output string, a uncertainty.Assessment, c uncertainty.Context) (*EngagementRequest, error) {
	req, err := r.build(ctx, output, a, c)
	if err != nil {
		return nil, err
	}
	r.record(ctx, Event{
		Kind:      EventRouted,
		RequestID: req.ID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Domain:    req.Domain,
		Strategy:  req.Strategy,
		Overall:   a.Overall,
		Sources:   a.Sources,
		Fallback:  req.Fallback || a.Fallback,
		Summary:   fmt.Sprintf("routed %s output to %s (overall %.2f)", req.Domain, req.Strategy, a.Overall),
	})
	r.logger.Info("routed output",
		zap.String("request_id", req.ID),
		zap.String("session_id", req.SessionID),
		zap.String("domain", string(req.Domain)),
		zap.String("strategy", string(req.Strategy)),
		zap.Float64("overall", a.Overall),
		zap.Bool("fallback", req.Fallback),
	)
	return req, nil
}

// Preview builds the engagement request without recording anything.
func (r *Router) Preview(ctx context.Context, output string, a uncertainty.Assessment, c uncertainty.Context) (*EngagementRequest, error) {
	return r.build(ctx, output, a, c)
}

// handlerFor returns the handler for d, falling back to conversational.
func (r *Router) handlerFor(d uncertainty.Domain) (uncertainty.Domain, handler, bool) {
	if h, ok := r.handlers[d]; ok {
		return d, h, true
	}
	return uncertainty.DomainConversational, r.handlers[uncertainty.DomainConversational], false
}

func (r *Router) build(ctx context.Context, output string, a uncertainty.Assessment, c uncertainty.Context) (*EngagementRequest, error) {
	if strings.TrimSpace(output) == "" {
		return nil, ErrEmptyOutput
	}
	c = c.Normalized()
	meta := map[string]string{}

	requested, classifyFailed := r.ResolveDomain(ctx, output, c)
	if classifyFailed {
		meta["fallback_reason"] = "classification_failed"
	}
	domain, h, ok := r.handlerFor(requested)
	if !ok {
		meta["fallback_reason"] = "no_handler"
		meta["requested_domain"] = string(requested)
	}
	fallback := classifyFailed || !ok
	if fallback {
		meta["fallback"] = "true"
	}
	if a.Fallback {
		meta["assessment_fallback"] = "true"
	}
	c.Domain = domain

	profile, _ := r.profiles.For(domain)
	strategy := profile.SelectStrategy(a)
	// Never route to less oversight than the assessment recommended.
	if a.Recommendation.Valid() && a.Recommendation.Rank() > strategy.Rank() {
		strategy = a.Recommendation
	}

	data := promptData{
		Strategy:        strategy,
		Assessment:      a,
		Context:         c,
		Output:          output,
		RecommendExpert: domain == uncertainty.DomainCompliance && (a.Overall >= profile.Strategy.Dialogue || strategy == uncertainty.StrategyExpert),
	}

	return &EngagementRequest{
		ID:                uuid.New().String(),
		SessionID:         c.SessionID,
		UserID:            c.UserID,
		OriginalOutput:    output,
		Assessment:        a,
		Context:           c,
		Domain:            domain,
		Strategy:          strategy,
		Priority:          priorityFor(domain, strategy, c.Stakes),
		EstimatedMinutes:  estimateMinutes(domain, strategy),
		RequiredExpertise: expertiseFor(domain, strategy),
		Mode:              modeFor(domain, c.TimeSensitivity),
		Prompt:            h.render(data),
		FallbackOptions:   fallbackOptionsFor(domain, strategy),
		Metadata:          meta,
		Fallback:          fallback,
		CreatedAt:         r.now(),
	}, nil
}

// ProcessResponse interprets a human response to req with the domain's
// extractor. The boost never exceeds the configured maximum.
func (r *Router) ProcessResponse(ctx context.Context, req *EngagementRequest, resp HumanResponse) (*ProcessedResponse, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, ErrEmptyResponse
	}
	if resp.Confidence < 0 || resp.Confidence > 1 || math.IsNaN(resp.Confidence) {
		return nil, ErrInvalidConfidence
	}

	domain, h, _ := r.handlerFor(req.Domain)
	ex := h.extract(resp)

	factor := r.settings.BoostFactor
	followUpAt := r.settings.FollowUpConfidence
	if domain == uncertainty.DomainCompliance {
		factor = r.settings.ComplianceBoostFactor
		followUpAt = r.settings.ComplianceFollowUpConfidence
	}
	coverage := 1.0
	if n := len(h.expected); n > 0 {
		coverage = float64(ex.found) / float64(n)
	}
	boost := math.Min(r.settings.MaxConfidenceBoost, resp.Confidence*factor*(0.5+0.5*coverage))

	followUp := resp.Confidence < followUpAt
	for _, f := range h.expected {
		if ex.fields[f] == "" {
			followUp = true
		}
	}

	out := &ProcessedResponse{
		RefinedOutput:   h.compose(req.OriginalOutput, ex.fields),
		ConfidenceBoost: boost,
		LearnedContext:  ex.fields,
		FollowUpNeeded:  followUp,
	}

	if h.audited {
		out.AuditDocumentation = r.auditDocumentation(req, resp, ex, followUp)
		detail, _ := json.Marshal(out.AuditDocumentation)
		r.record(ctx, Event{
			Kind:      EventComplianceAudit,
			RequestID: req.ID,
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Domain:    domain,
			Strategy:  req.Strategy,
			Overall:   req.Assessment.Overall,
			Fallback:  req.Fallback,
			Summary:   "compliance response recorded",
			Detail:    string(detail),
		})
	}
	return out, nil
}

func (r *Router) auditDocumentation(req *EngagementRequest, resp HumanResponse, ex extraction, followUp bool) *AuditDocumentation {
	sum := sha256.Sum256([]byte(resp.Text))
	fields := make(map[string]string, len(ex.fields))
	for k, v := range ex.fields {
		fields[k] = v
	}
	return &AuditDocumentation{
		RequestID:         req.ID,
		SessionID:         req.SessionID,
		UserID:            req.UserID,
		Strategy:          string(req.Strategy),
		Overall:           req.Assessment.Overall,
		RegulatoryContext: ex.fields[FieldRegulatoryContext],
		RiskTolerance:     ex.fields[FieldRiskTolerance],
		ResponseDigest:    hex.EncodeToString(sum[:]),
		HumanConfidence:   resp.Confidence,
		ReviewRequired:    followUp,
		Fields:            fields,
		RecordedAt:        r.now(),
	}
}

// Record appends an event to the history, if one is configured.
func (r *Router) Record(ctx context.Context, e Event) {
	r.record(ctx, e)
}

func (r *Router) record(ctx context.Context, e Event) {
	if r.history == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	if err := r.history.Append(ctx, e); err != nil {
		r.logger.Warn("appending engagement history", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

// History returns the configured history, or nil.
func (r *Router) History() History { return r.history }
