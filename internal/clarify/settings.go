package clarify

import (
	"fmt"
	"time"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Settings are the tunable constants of the dialogue.
type Settings struct {
	MaxQuestionsPerRound       int     `yaml:"max_questions_per_round" koanf:"max_questions_per_round" json:"max_questions_per_round"`
	MinResponsesPerStage       int     `yaml:"min_responses_per_stage" koanf:"min_responses_per_stage" json:"min_responses_per_stage"`
	MaxTotalQuestions          int     `yaml:"max_total_questions" koanf:"max_total_questions" json:"max_total_questions"`
	SessionTimeoutMinutes      int     `yaml:"session_timeout_minutes" koanf:"session_timeout_minutes" json:"session_timeout_minutes"`
	ConfidenceStep             float64 `yaml:"confidence_step" koanf:"confidence_step" json:"confidence_step"`
	DiminishingRate            float64 `yaml:"diminishing_rate" koanf:"diminishing_rate" json:"diminishing_rate"`
	MaxSingleBoost             float64 `yaml:"max_single_boost" koanf:"max_single_boost" json:"max_single_boost"`
	CompletionResponseWeight   float64 `yaml:"completion_response_weight" koanf:"completion_response_weight" json:"completion_response_weight"`
	CompletionConfidenceWeight float64 `yaml:"completion_confidence_weight" koanf:"completion_confidence_weight" json:"completion_confidence_weight"`
	ConfidenceGainTarget       float64 `yaml:"confidence_gain_target" koanf:"confidence_gain_target" json:"confidence_gain_target"`
}

// DefaultSettings returns the stock dialogue settings.
func DefaultSettings() Settings {
	return Settings{
		MaxQuestionsPerRound:       3,
		MinResponsesPerStage:       2,
		MaxTotalQuestions:          10,
		SessionTimeoutMinutes:      30,
		ConfidenceStep:             0.1,
		DiminishingRate:            0.1,
		MaxSingleBoost:             0.1,
		CompletionResponseWeight:   0.6,
		CompletionConfidenceWeight: 0.4,
		ConfidenceGainTarget:       0.5,
	}
}

// Timeout returns the session timeout as a duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.SessionTimeoutMinutes) * time.Minute
}

// Validate checks that the settings describe a dialogue that can finish.
func (s Settings) Validate() error {
	switch {
	case s.MaxQuestionsPerRound < 1:
		return fmt.Errorf("max_questions_per_round must be at least 1")
	case s.MinResponsesPerStage < 1:
		return fmt.Errorf("min_responses_per_stage must be at least 1")
	case s.MaxTotalQuestions < 1:
		return fmt.Errorf("max_total_questions must be at least 1")
	case s.SessionTimeoutMinutes < 1:
		return fmt.Errorf("session_timeout_minutes must be at least 1")
	case s.ConfidenceStep < 0 || s.DiminishingRate < 0 || s.MaxSingleBoost < 0:
		return fmt.Errorf("confidence_step, diminishing_rate and max_single_boost must not be negative")
	case s.ConfidenceGainTarget <= 0:
		return fmt.Errorf("confidence_gain_target must be positive")
	case s.CompletionResponseWeight < 0 || s.CompletionConfidenceWeight < 0 ||
		s.CompletionResponseWeight+s.CompletionConfidenceWeight > 1+1e-9:
		return fmt.Errorf("completion weights must be non-negative and sum to at most 1")
	}
	return nil
}

// questionBudget is how many questions one round may ask.
func (s Settings) questionBudget(st uncertainty.Strategy) int {
	if st == uncertainty.StrategyBrief || st == uncertainty.StrategyProceed {
		return 1
	}
	return s.MaxQuestionsPerRound
}
