package routing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// EventKind classifies engagement history events.
type EventKind string

const (
	EventRouted            EventKind = "routed"
	EventResponseProcessed EventKind = "response_processed"
	EventComplianceAudit   EventKind = "compliance_audit"
	EventSessionStarted    EventKind = "session_started"
	EventSessionCompleted  EventKind = "session_completed"
	EventSessionAbandoned  EventKind = "session_abandoned"
)

// Event is one record in the append-only engagement history.
type Event struct {
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Kind      EventKind            `json:"kind"`
	RequestID string               `json:"request_id,omitempty"`
	SessionID string               `json:"session_id,omitempty"`
	UserID    string               `json:"user_id,omitempty"`
	Domain    uncertainty.Domain   `json:"domain"`
	Strategy  uncertainty.Strategy `json:"strategy"`
	Overall   float64              `json:"overall"`
	Sources   []uncertainty.Source `json:"sources,omitempty"`
	Fallback  bool                 `json:"fallback,omitempty"`
	Summary   string               `json:"summary"`
	Detail    string               `json:"detail,omitempty"`
}

// HistoryFilter narrows History.List results. Zero fields match anything.
type HistoryFilter struct {
	Kind      EventKind
	Domain    uncertainty.Domain
	Strategy  uncertainty.Strategy
	UserID    string
	SessionID string
	Since     *time.Time
	Limit     int
}

func (f HistoryFilter) matches(e Event) bool {
	switch {
	case f.Kind != "" && e.Kind != f.Kind:
		return false
	case f.Domain != "" && e.Domain != f.Domain:
		return false
	case f.Strategy != "" && e.Strategy != f.Strategy:
		return false
	case f.UserID != "" && e.UserID != f.UserID:
		return false
	case f.SessionID != "" && e.SessionID != f.SessionID:
		return false
	case f.Since != nil && e.Timestamp.Before(*f.Since):
		return false
	}
	return true
}

// History is the append-only engagement log. It is the extension point for
// learning which strategies work; nothing in the engine learns from it yet.
type History interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f HistoryFilter) ([]Event, error)
}

// MemoryHistory keeps events in process memory.
type MemoryHistory struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Append(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	e.Sources = append([]uncertainty.Source(nil), e.Sources...)
	h.events = append(h.events, e)
	return nil
}

// List returns matching events, newest first.
func (h *MemoryHistory) List(_ context.Context, f HistoryFilter) ([]Event, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Event
	for i := len(h.events) - 1; i >= 0; i-- {
		e := h.events[i]
		if !f.matches(e) {
			continue
		}
		e.Sources = append([]uncertainty.Source(nil), e.Sources...)
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// StrategyStat aggregates routing decisions for one domain and strategy.
type StrategyStat struct {
	Domain      uncertainty.Domain   `json:"domain"`
	Strategy    uncertainty.Strategy `json:"strategy"`
	Count       int                  `json:"count"`
	MeanOverall float64              `json:"mean_overall"`
}

// StrategyStats summarizes routed events. Fallback events are excluded so
// they do not skew strategy-effectiveness figures.
func StrategyStats(events []Event) []StrategyStat {
	type key struct {
		d uncertainty.Domain
		s uncertainty.Strategy
	}
	acc := map[key]*StrategyStat{}
	for _, e := range events {
		if e.Kind != EventRouted || e.Fallback {
			continue
		}
		k := key{e.Domain, e.Strategy}
		st, ok := acc[k]
		if !ok {
			st = &StrategyStat{Domain: e.Domain, Strategy: e.Strategy}
			acc[k] = st
		}
		st.MeanOverall = (st.MeanOverall*float64(st.Count) + e.Overall) / float64(st.Count+1)
		st.Count++
	}

	out := make([]StrategyStat, 0, len(acc))
	for _, st := range acc {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Strategy.Rank() < out[j].Strategy.Rank()
	})
	return out
}
