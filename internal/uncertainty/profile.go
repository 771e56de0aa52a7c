package uncertainty

import (
	"fmt"
	"math"
)

// Weights combines the three dimension scores into the overall score.
type Weights struct {
	Epistemic  float64 `yaml:"epistemic" koanf:"epistemic" json:"epistemic"`
	Aleatoric  float64 `yaml:"aleatoric" koanf:"aleatoric" json:"aleatoric"`
	Confidence float64 `yaml:"confidence" koanf:"confidence" json:"confidence"`
}

// Sum returns the total of the three weights.
func (w Weights) Sum() float64 {
	return w.Epistemic + w.Aleatoric + w.Confidence
}

// Thresholds are the upper bounds of each strategy band. An overall score
// below Proceed selects proceed_with_confidence, below Brief selects
// brief_clarification and so on; at or above Collaborative selects
// expert_consultation.
type Thresholds struct {
	Proceed       float64 `yaml:"proceed" koanf:"proceed" json:"proceed"`
	Brief         float64 `yaml:"brief" koanf:"brief" json:"brief"`
	Dialogue      float64 `yaml:"dialogue" koanf:"dialogue" json:"dialogue"`
	Collaborative float64 `yaml:"collaborative" koanf:"collaborative" json:"collaborative"`
}

// bounds returns the thresholds in band order.
func (t Thresholds) bounds() []float64 {
	return []float64{t.Proceed, t.Brief, t.Dialogue, t.Collaborative}
}

// Select maps an overall score to a strategy.
func (t Thresholds) Select(overall float64) Strategy {
	for i, b := range t.bounds() {
		if overall < b {
			return Strategies[i]
		}
	}
	return StrategyExpert
}

// Profile is the domain-specific configuration of the assessor and the
// strategy tables.
type Profile struct {
	Weights     Weights    `yaml:"weights" koanf:"weights" json:"weights"`
	Multipliers Weights    `yaml:"multipliers" koanf:"multipliers" json:"multipliers"`
	Sources     Weights    `yaml:"source_thresholds" koanf:"source_thresholds" json:"source_thresholds"`
	Strategy    Thresholds `yaml:"strategy_thresholds" koanf:"strategy_thresholds" json:"strategy_thresholds"`

	// ComponentCeiling, when positive, forces expert_consultation if the
	// epistemic or confidence score reaches it regardless of overall.
	ComponentCeiling float64 `yaml:"component_ceiling" koanf:"component_ceiling" json:"component_ceiling"`

	// Randomness is the intrinsic unpredictability of the domain.
	Randomness float64 `yaml:"randomness" koanf:"randomness" json:"randomness"`

	// CompletionThreshold is the estimated completion at which a
	// clarification session in this domain is considered done.
	CompletionThreshold float64 `yaml:"completion_threshold" koanf:"completion_threshold" json:"completion_threshold"`
}

// Overall combines three dimension scores with the profile weights.
func (p Profile) Overall(epistemic, aleatoric, confidence float64) float64 {
	return Clamp(p.Weights.Epistemic*Clamp(epistemic) +
		p.Weights.Aleatoric*Clamp(aleatoric) +
		p.Weights.Confidence*Clamp(confidence))
}

// SelectStrategy applies the strategy bands and the component ceiling.
func (p Profile) SelectStrategy(a Assessment) Strategy {
	s := p.Strategy.Select(a.Overall)
	if p.ComponentCeiling > 0 && (a.Epistemic >= p.ComponentCeiling || a.Confidence >= p.ComponentCeiling) {
		s = StrategyExpert
	}
	return s
}

// Profiles holds the built-in domain profiles.
type Profiles struct {
	Conversational Profile `yaml:"conversational" koanf:"conversational" json:"conversational"`
	Technical      Profile `yaml:"technical" koanf:"technical" json:"technical"`
	Compliance     Profile `yaml:"compliance" koanf:"compliance" json:"compliance"`
}

// DefaultProfiles returns the stock profile set.
func DefaultProfiles() Profiles {
	return Profiles{
		Conversational: Profile{
			Weights:             Weights{Epistemic: 0.30, Aleatoric: 0.45, Confidence: 0.25},
			Multipliers:         Weights{Epistemic: 0.9, Aleatoric: 1.2, Confidence: 0.9},
			Sources:             Weights{Epistemic: 0.6, Aleatoric: 0.5, Confidence: 0.5},
			Strategy:            Thresholds{Proceed: 0.30, Brief: 0.55, Dialogue: 0.75, Collaborative: 0.90},
			Randomness:          0.5,
			CompletionThreshold: 0.7,
		},
		Technical: Profile{
			Weights:             Weights{Epistemic: 0.50, Aleatoric: 0.20, Confidence: 0.30},
			Multipliers:         Weights{Epistemic: 1.0, Aleatoric: 0.8, Confidence: 1.0},
			Sources:             Weights{Epistemic: 0.4, Aleatoric: 0.5, Confidence: 0.4},
			Strategy:            Thresholds{Proceed: 0.20, Brief: 0.40, Dialogue: 0.60, Collaborative: 0.80},
			Randomness:          0.2,
			CompletionThreshold: 0.8,
		},
		Compliance: Profile{
			Weights:             Weights{Epistemic: 0.40, Aleatoric: 0.20, Confidence: 0.40},
			Multipliers:         Weights{Epistemic: 1.2, Aleatoric: 1.0, Confidence: 1.3},
			Sources:             Weights{Epistemic: 0.3, Aleatoric: 0.4, Confidence: 0.3},
			Strategy:            Thresholds{Proceed: 0.10, Brief: 0.20, Dialogue: 0.40, Collaborative: 0.40},
			ComponentCeiling:    0.7,
			Randomness:          0.3,
			CompletionThreshold: 0.9,
		},
	}
}

// For returns the profile for d. ok is false when d has no profile, in
// which case the conversational profile is returned.
func (ps Profiles) For(d Domain) (Profile, bool) {
	switch d {
	case DomainConversational, "":
		return ps.Conversational, true
	case DomainTechnical:
		return ps.Technical, true
	case DomainCompliance:
		return ps.Compliance, true
	}
	return ps.Conversational, false
}

// Validate checks weights, ranges and the stakes ordering between domains.
func (ps Profiles) Validate() error {
	named := []struct {
		name string
		p    Profile
	}{
		{"conversational", ps.Conversational},
		{"technical", ps.Technical},
		{"compliance", ps.Compliance},
	}
	for _, n := range named {
		if err := n.p.validate(); err != nil {
			return fmt.Errorf("domain %s: %w", n.name, err)
		}
	}

	comp := ps.Compliance.Strategy.bounds()
	tech := ps.Technical.Strategy.bounds()
	conv := ps.Conversational.Strategy.bounds()
	for i := range comp {
		if !(comp[i] < tech[i] && tech[i] < conv[i]) {
			return fmt.Errorf("strategy boundary %d must be strictly tighter for compliance < technical < conversational (got %.2f, %.2f, %.2f)",
				i, comp[i], tech[i], conv[i])
		}
	}
	return nil
}

func (p Profile) validate() error {
	if math.Abs(p.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %.4f", p.Weights.Sum())
	}
	for _, v := range []float64{
		p.Weights.Epistemic, p.Weights.Aleatoric, p.Weights.Confidence,
		p.Sources.Epistemic, p.Sources.Aleatoric, p.Sources.Confidence,
		p.ComponentCeiling, p.Randomness, p.CompletionThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("value %.2f out of range [0,1]", v)
		}
	}
	for _, v := range []float64{p.Multipliers.Epistemic, p.Multipliers.Aleatoric, p.Multipliers.Confidence} {
		if v <= 0 {
			return fmt.Errorf("multipliers must be positive")
		}
	}
	b := p.Strategy.bounds()
	for i, v := range b {
		if v < 0 || v > 1 {
			return fmt.Errorf("strategy threshold %.2f out of range [0,1]", v)
		}
		if i > 0 && v < b[i-1] {
			return fmt.Errorf("strategy thresholds must be ascending")
		}
	}
	return nil
}
