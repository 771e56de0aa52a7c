package uncertainty

import (
	"context"
	"math"
)

// Input is what every estimator sees for one assessment call.
type Input struct {
	Output   string
	Features Features
	Context  Context
}

// Probe is one independent estimate of how uncertain an output is. The
// spread between probes is the disagreement term of the epistemic score.
type Probe interface {
	Name() string
	Estimate(ctx context.Context, in Input) (float64, error)
}

// CoverageEstimator reports how well the topic of an output is covered by
// known material, in [0,1].
type CoverageEstimator interface {
	Coverage(ctx context.Context, in Input) (float64, error)
}

// HedgeProbe reads uncertainty from hedging density.
type HedgeProbe struct{}

func (HedgeProbe) Name() string { return "hedging" }

func (HedgeProbe) Estimate(_ context.Context, in Input) (float64, error) {
	return hedgeScore(in.Features), nil
}

func hedgeScore(f Features) float64 {
	return Clamp(0.5 * float64(f.Hedges) / float64(max(1, f.SentenceCount())))
}

// InquiryProbe reads uncertainty from open questions and alternatives.
type InquiryProbe struct{}

func (InquiryProbe) Name() string { return "inquiry" }

func (InquiryProbe) Estimate(_ context.Context, in Input) (float64, error) {
	n := float64(max(1, in.Features.SentenceCount()))
	return Clamp(0.4*float64(in.Features.Questions)/n + 0.2*float64(in.Features.Alternatives)/n), nil
}

// BrevityProbe treats short outputs as under-specified.
type BrevityProbe struct {
	// FullLength is the word count at which an output stops being short.
	FullLength int
}

func (BrevityProbe) Name() string { return "brevity" }

func (p BrevityProbe) Estimate(_ context.Context, in Input) (float64, error) {
	full := p.FullLength
	if full <= 0 {
		full = 40
	}
	return Clamp(1 - math.Min(1, float64(in.Features.Words)/float64(full))), nil
}

// DefaultProbes returns the lexical probe ensemble.
func DefaultProbes() []Probe {
	return []Probe{HedgeProbe{}, InquiryProbe{}, BrevityProbe{FullLength: 40}}
}

// ContextCoverage estimates coverage from what the caller knows: available
// resources and prior interactions raise coverage above a neutral base.
type ContextCoverage struct{}

func (ContextCoverage) Coverage(_ context.Context, in Input) (float64, error) {
	resources := math.Min(3, float64(len(in.Context.AvailableResources)))
	history := math.Min(4, float64(len(in.Context.History)))
	return Clamp(0.5 + 0.1*resources + 0.05*history), nil
}

// coherence scores how well consecutive sentences hang together. A single
// sentence is treated as coherent; contradiction markers reduce the score.
func coherence(f Features) float64 {
	var base float64
	if len(f.Sentences) <= 1 {
		base = 0.8
	} else {
		var total float64
		for i := 1; i < len(f.Sentences); i++ {
			total += jaccard(f.Sentences[i-1], f.Sentences[i])
		}
		mean := total / float64(len(f.Sentences)-1)
		base = 0.4 + 0.6*math.Min(1, 2*mean)
	}
	return Clamp(base - 0.15*float64(f.Contradictions))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]int, len(a)+len(b))
	for _, w := range a {
		set[w] |= 1
	}
	for _, w := range b {
		set[w] |= 2
	}
	var inter int
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

func linguisticAmbiguity(f Features) float64 {
	return Clamp(0.35*float64(f.Hedges) + 0.25*float64(f.Subjective))
}

func interpretationDiversity(f Features) float64 {
	return Clamp(0.3*float64(f.Alternatives) + 0.2*float64(f.Questions) +
		0.2*float64(f.Contradictions) + 0.1*float64(f.Subjective))
}

// calibration is high when expressed certainty is neither hedged nor
// overclaimed.
func calibration(f Features) float64 {
	return Clamp(1 - 0.5*hedgeScore(f) - 0.3*math.Min(1, 0.5*float64(f.Absolutes)))
}

// historicalAccuracy averages recorded outcome accuracy, defaulting to a
// slightly optimistic prior when nothing was recorded.
func historicalAccuracy(c Context) float64 {
	var sum float64
	var n int
	for _, h := range c.History {
		if h.HasAccuracy {
			sum += Clamp(h.Accuracy)
			n++
		}
	}
	if n == 0 {
		return 0.6
	}
	return sum / float64(n)
}
