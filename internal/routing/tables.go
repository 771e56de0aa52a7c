package routing

import (
	"math"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// baseMinutes is the expected human time per strategy before domain scaling.
var baseMinutes = map[uncertainty.Strategy]float64{
	uncertainty.StrategyProceed:       0,
	uncertainty.StrategyBrief:         2,
	uncertainty.StrategyDialogue:      10,
	uncertainty.StrategyCollaborative: 20,
	uncertainty.StrategyExpert:        45,
}

var durationFactor = map[uncertainty.Domain]float64{
	uncertainty.DomainConversational: 1.0,
	uncertainty.DomainTechnical:      1.5,
	uncertainty.DomainCompliance:     2.0,
}

func estimateMinutes(d uncertainty.Domain, s uncertainty.Strategy) int {
	f, ok := durationFactor[d]
	if !ok {
		f = 1.0
	}
	base, ok := baseMinutes[s]
	if !ok {
		base = baseMinutes[uncertainty.StrategyExpert]
	}
	return int(math.Round(base * f))
}

func priorityFor(d uncertainty.Domain, s uncertainty.Strategy, stakes uncertainty.Stakes) Priority {
	if d == uncertainty.DomainCompliance {
		return PriorityHigh
	}

	var p Priority
	switch s {
	case uncertainty.StrategyProceed, uncertainty.StrategyBrief:
		p = PriorityLow
	case uncertainty.StrategyDialogue:
		p = PriorityMedium
	case uncertainty.StrategyCollaborative:
		p = PriorityMedium
		if d == uncertainty.DomainTechnical {
			p = PriorityHigh
		}
	default:
		p = PriorityHigh
		if d == uncertainty.DomainTechnical {
			p = PriorityCritical
		}
	}
	if stakes == uncertainty.StakesHigh {
		p = p.raise()
	}
	return p
}

func modeFor(d uncertainty.Domain, ts uncertainty.TimeSensitivity) Mode {
	switch d {
	case uncertainty.DomainCompliance:
		return ModeHybrid
	case uncertainty.DomainTechnical:
		if ts == uncertainty.TimeUrgent {
			return ModeSynchronous
		}
		return ModeAsynchronous
	default:
		return ModeSynchronous
	}
}

func expertiseFor(d uncertainty.Domain, s uncertainty.Strategy) []string {
	rank := s.Rank()
	tags := []string{}
	switch d {
	case uncertainty.DomainTechnical:
		tags = append(tags, "technical_review")
		if rank >= uncertainty.StrategyCollaborative.Rank() {
			tags = append(tags, "architecture")
		}
		if rank >= uncertainty.StrategyExpert.Rank() {
			tags = append(tags, "senior_engineer")
		}
	case uncertainty.DomainCompliance:
		tags = append(tags, "compliance_officer")
		if rank >= uncertainty.StrategyDialogue.Rank() {
			tags = append(tags, "risk_management")
		}
		if rank >= uncertainty.StrategyExpert.Rank() {
			tags = append(tags, "legal_counsel")
		}
	default:
		if rank >= uncertainty.StrategyDialogue.Rank() {
			tags = append(tags, "domain_knowledge")
		}
	}
	return tags
}

// Fallback options offered when the human cannot be reached in time.
const (
	OptionProceedWithDisclaimer = "proceed_with_disclaimer"
	OptionConservativeDefault   = "use_conservative_default"
	OptionDeferAsync            = "defer_to_async_review"
	OptionEscalateExpert        = "escalate_to_expert"
	OptionHaltPendingReview     = "halt_pending_review"
)

func fallbackOptionsFor(d uncertainty.Domain, s uncertainty.Strategy) []string {
	if d == uncertainty.DomainCompliance {
		if s == uncertainty.StrategyProceed {
			return []string{OptionProceedWithDisclaimer}
		}
		return []string{OptionHaltPendingReview, OptionEscalateExpert}
	}
	switch s {
	case uncertainty.StrategyProceed:
		return []string{OptionProceedWithDisclaimer}
	case uncertainty.StrategyBrief:
		return []string{OptionProceedWithDisclaimer, OptionConservativeDefault}
	case uncertainty.StrategyDialogue:
		return []string{OptionDeferAsync, OptionConservativeDefault}
	case uncertainty.StrategyCollaborative:
		return []string{OptionDeferAsync, OptionEscalateExpert}
	default:
		return []string{OptionEscalateExpert, OptionHaltPendingReview}
	}
}
