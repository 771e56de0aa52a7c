package uncertainty

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Conservative scores used when an assessment cannot be computed.
const (
	fallbackEpistemic  = 0.8
	fallbackAleatoric  = 0.7
	fallbackConfidence = 0.8
)

// ErrEmptyOutput is reported (and logged) when there is nothing to assess.
var ErrEmptyOutput = errors.New("output is empty")

// Assessor produces multi-dimensional uncertainty assessments.
type Assessor struct {
	profiles Profiles
	probes   []Probe
	coverage CoverageEstimator
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Assessor.
type Option func(*Assessor)

// WithProbes replaces the probe ensemble.
func WithProbes(probes ...Probe) Option {
	return func(a *Assessor) {
		a.probes = probes
	}
}

// WithExtraProbes appends probes to the ensemble.
func WithExtraProbes(probes ...Probe) Option {
	return func(a *Assessor) {
		a.probes = append(a.probes, probes...)
	}
}

// WithCoverage sets the knowledge-coverage estimator.
func WithCoverage(c CoverageEstimator) Option {
	return func(a *Assessor) {
		if c != nil {
			a.coverage = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assessor) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Assessor) {
		a.now = now
	}
}

// NewAssessor creates an assessor with the lexical probes and context-based
// coverage unless overridden.
func NewAssessor(profiles Profiles, opts ...Option) *Assessor {
	a := &Assessor{
		profiles: profiles,
		probes:   DefaultProbes(),
		coverage: ContextCoverage{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Profiles returns the profile set the assessor scores with.
func (a *Assessor) Profiles() Profiles { return a.profiles }

// Assess scores output in context c. It never fails: any internal error
// yields a conservative fallback assessment that biases toward more human
// oversight.
func (a *Assessor) Assess(ctx context.Context, output string, c Context) (result Assessment) {
	c = c.Normalized()
	defer func() {
		if r := recover(); r != nil {
			result = a.fallback(c, fmt.Errorf("panic: %v", r))
		}
	}()

	res, err := a.assess(ctx, output, c)
	if err != nil {
		return a.fallback(c, err)
	}
	return res
}

func (a *Assessor) assess(ctx context.Context, output string, c Context) (Assessment, error) {
	if strings.TrimSpace(output) == "" {
		return Assessment{}, ErrEmptyOutput
	}
	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}

	profile, _ := a.profiles.For(c.Domain)
	in := Input{Output: output, Features: Analyze(output), Context: c}

	disagreement, err := a.disagreement(ctx, in)
	if err != nil {
		return Assessment{}, err
	}
	coverage, err := a.coverage.Coverage(ctx, in)
	if err != nil {
		return Assessment{}, fmt.Errorf("coverage: %w", err)
	}
	coverage = Clamp(coverage)
	coh := coherence(in.Features)

	epistemic := Clamp(profile.Multipliers.Epistemic *
		(0.4*disagreement + 0.3*(1-coh) + 0.3*(1-coverage)))
	aleatoric := Clamp(profile.Multipliers.Aleatoric *
		(0.4*linguisticAmbiguity(in.Features) + 0.35*interpretationDiversity(in.Features) + 0.25*Clamp(profile.Randomness)))
	confidence := Clamp(profile.Multipliers.Confidence *
		(0.4*(1-calibration(in.Features)) + 0.3*(1-(1-0.5*disagreement)) + 0.3*(1-historicalAccuracy(c))))

	res := Assessment{
		Epistemic:  epistemic,
		Aleatoric:  aleatoric,
		Confidence: confidence,
		Overall:    profile.Overall(epistemic, aleatoric, confidence),
		Domain:     resolvedDomain(c.Domain),
		AssessedAt: a.now(),
	}
	res.Sources = detectSources(in, res, profile, coverage)
	res.Intervals = intervals(res, disagreement)
	res.Recommendation = profile.SelectStrategy(res)
	res.Explanation = Explain(res, c)

	a.logger.Debug("assessed output",
		zap.String("domain", string(res.Domain)),
		zap.Float64("epistemic", res.Epistemic),
		zap.Float64("aleatoric", res.Aleatoric),
		zap.Float64("confidence", res.Confidence),
		zap.Float64("overall", res.Overall),
		zap.String("strategy", string(res.Recommendation)),
	)
	return res, nil
}

// Rescore normalizes an assessment produced elsewhere against the profile
// of c's domain. Components and intervals are clamped to [0,1] and Overall
// is recomputed from the components. A supplied recommendation survives
// only if it is a known strategy asking for more oversight than the
// recomputed one.
func (a *Assessor) Rescore(in Assessment, c Context) Assessment {
	c = c.Normalized()
	profile, _ := a.profiles.For(c.Domain)

	res := in
	res.Epistemic = Clamp(in.Epistemic)
	res.Aleatoric = Clamp(in.Aleatoric)
	res.Confidence = Clamp(in.Confidence)
	res.Overall = profile.Overall(res.Epistemic, res.Aleatoric, res.Confidence)
	res.Domain = resolvedDomain(c.Domain)
	res.Sources = sortSources(in.Sources)
	if len(in.Intervals) > 0 {
		res.Intervals = make(map[Dimension]Interval, len(in.Intervals))
		for d, iv := range in.Intervals {
			lo, hi := Clamp(iv.Lower), Clamp(iv.Upper)
			if lo > hi {
				lo, hi = hi, lo
			}
			res.Intervals[d] = Interval{Lower: lo, Upper: hi}
		}
	} else {
		res.Intervals = intervals(res, 0)
	}
	res.Recommendation = profile.SelectStrategy(res)
	if in.Recommendation.Valid() && in.Recommendation.Rank() > res.Recommendation.Rank() {
		res.Recommendation = in.Recommendation
	}
	if res.AssessedAt.IsZero() {
		res.AssessedAt = a.now()
	}
	if res.Explanation == "" {
		res.Explanation = Explain(res, c)
	}
	return res
}

func (a *Assessor) disagreement(ctx context.Context, in Input) (float64, error) {
	if len(a.probes) == 0 {
		return 0, nil
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range a.probes {
		v, err := p.Estimate(ctx, in)
		if err != nil {
			return 0, fmt.Errorf("probe %s: %w", p.Name(), err)
		}
		v = Clamp(v)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return Clamp(hi - lo), nil
}

// Fallback returns the conservative assessment used when scoring fails.
func (a *Assessor) Fallback(c Context) Assessment {
	return a.fallback(c.Normalized(), nil)
}

func (a *Assessor) fallback(c Context, cause error) Assessment {
	if cause != nil {
		a.logger.Warn("uncertainty assessment failed, using conservative fallback",
			zap.String("domain", string(c.Domain)),
			zap.Error(cause),
		)
	}
	profile, _ := a.profiles.For(c.Domain)
	res := Assessment{
		Epistemic:      fallbackEpistemic,
		Aleatoric:      fallbackAleatoric,
		Confidence:     fallbackConfidence,
		Overall:        profile.Overall(fallbackEpistemic, fallbackAleatoric, fallbackConfidence),
		Sources:        []Source{SourceAssessmentFailure},
		Recommendation: StrategyCollaborative,
		Domain:         resolvedDomain(c.Domain),
		Fallback:       true,
		AssessedAt:     a.now(),
	}
	if c.Stakes == StakesHigh {
		res.Sources = append(res.Sources, SourceHighStakes)
	}
	res.Intervals = intervals(res, 1)
	res.Explanation = Explain(res, c)
	return res
}

func resolvedDomain(d Domain) Domain {
	if d == "" {
		return DomainConversational
	}
	return d
}

func detectSources(in Input, res Assessment, p Profile, coverage float64) []Source {
	var out []Source
	f := in.Features

	if coverage < 0.4 {
		out = append(out, SourceKnowledgeGap)
	} else if res.Epistemic > p.Sources.Epistemic {
		out = append(out, SourceInsufficientContext)
	}
	if res.Aleatoric > p.Sources.Aleatoric {
		out = append(out, SourceMultipleInterpretations)
	}
	if res.Confidence > p.Sources.Confidence {
		out = append(out, SourceLowConfidence)
	}

	if f.Hedges > 0 {
		out = append(out, SourceAmbiguousLanguage)
	}
	if f.Alternatives > 0 || f.Questions > 1 {
		out = append(out, SourceMultipleInterpretations)
	}
	if f.Subjective > 0 {
		out = append(out, SourceSubjectiveElements)
	}
	if f.Contradictions > 0 {
		out = append(out, SourceConflictingInformation)
	}
	if f.Words < 8 && len(in.Context.History) == 0 {
		out = append(out, SourceInsufficientContext)
	}
	if in.Context.Stakes == StakesHigh {
		out = append(out, SourceHighStakes)
	}
	return sortSources(out)
}

func intervals(res Assessment, disagreement float64) map[Dimension]Interval {
	half := 0.05 + 0.15*Clamp(disagreement)
	mk := func(v float64) Interval {
		return Interval{Lower: Clamp(v - half), Upper: Clamp(v + half)}
	}
	return map[Dimension]Interval{
		DimensionEpistemic:  mk(res.Epistemic),
		DimensionAleatoric:  mk(res.Aleatoric),
		DimensionConfidence: mk(res.Confidence),
	}
}
