package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/clarify"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RegisterRoutes mounts the engine API under /api/v1. identity must place
// an auth.Identity in the request context (auth.Middleware does).
func RegisterRoutes(r chi.Router, e *Engine, identity func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		if identity != nil {
			r.Use(identity)
		}
		r.Post("/assess", handleAssess(e))
		r.Post("/verify", handleVerify(e))
		r.Post("/simulate", handleSimulate(e))

		r.Route("/clarifications/{id}", func(r chi.Router) {
			r.Get("/", handleStatus(e))
			r.Get("/questions", handleQuestions(e))
			r.Post("/responses", handleRespond(e))
			r.Get("/output", handleOutput(e))
			r.Post("/pause", handleTransition(e.Pause))
			r.Post("/resume", handleTransition(e.Resume))
			r.Post("/abandon", handleTransition(e.Abandon))
		})

		r.Get("/history", handleHistory(e))
		r.Get("/history/stats", handleStats(e))
	})
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errors.Join(ErrInvalidInput, err))
		return false
	}
	return true
}

func handleAssess(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AssessRequest
		if !decode(w, r, &req) {
			return
		}
		a, err := e.AssessUncertainty(r.Context(), identityFrom(r), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleVerify(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyRequest
		if !decode(w, r, &req) {
			return
		}
		res, err := e.VerifyWithEngagement(r.Context(), identityFrom(r), req)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if res.RequiresClarification {
			status = http.StatusCreated
		}
		writeJSON(w, status, res)
	}
}

func handleSimulate(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SimulateRequest
		if !decode(w, r, &req) {
			return
		}
		res, err := e.SimulateEngagement(r.Context(), identityFrom(r), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleStatus(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := e.ClarificationStatus(r.Context(), identityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleQuestions(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := e.NextQuestions(r.Context(), identityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

func handleRespond(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RespondRequest
		if !decode(w, r, &req) {
			return
		}
		req.SessionID = chi.URLParam(r, "id")
		res, err := e.ClarificationRespond(r.Context(), identityFrom(r), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleOutput(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := e.RefinedOutput(r.Context(), identityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleTransition serves the lifecycle endpoints that move a session
// between statuses and answer with its snapshot.
func handleTransition(move func(context.Context, auth.Identity, string) (*clarify.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := move(r.Context(), identityFrom(r), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func historyFilter(r *http.Request) routing.HistoryFilter {
	q := r.URL.Query()
	f := routing.HistoryFilter{
		Kind:      routing.EventKind(q.Get("kind")),
		Domain:    uncertainty.Domain(q.Get("domain")),
		Strategy:  uncertainty.Strategy(q.Get("strategy")),
		UserID:    q.Get("user"),
		SessionID: q.Get("session"),
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Since = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	return f
}

func handleHistory(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := e.History(r.Context(), identityFrom(r), historyFilter(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func handleStats(e *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := e.Stats(r.Context(), identityFrom(r), historyFilter(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// StatusCode maps an engine error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, clarify.ErrEmptyResponse),
		errors.Is(err, clarify.ErrInvalidConfidence),
		errors.Is(err, clarify.ErrEmptyOutput),
		errors.Is(err, routing.ErrEmptyOutput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, clarify.ErrSessionNotFound),
		errors.Is(err, clarify.ErrUnknownQuestion):
		return http.StatusNotFound
	case errors.Is(err, clarify.ErrAlreadyAnswered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusCode(err), errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
