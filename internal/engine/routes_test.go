package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/clarify"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	h := newHarness(t)
	r := chi.NewRouter()
	RegisterRoutes(r, h.engine, auth.Middleware("", ""))
	return r
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(auth.DefaultUserHeader, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutesRequireIdentity(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/v1/assess", "", AssessRequest{Text: hedged})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoutesClarificationFlow(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/verify", "alice", VerifyRequest{Text: hedged})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var verify VerifyResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verify))
	require.True(t, verify.RequiresClarification)
	require.Len(t, verify.InitialQuestions, 1)
	base := "/api/v1/clarifications/" + verify.ClarificationSessionID

	w = do(t, r, http.MethodGet, base, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap clarify.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, clarify.StatusActive, snap.Status)
	assert.Equal(t, 1, snap.QuestionsAsked)

	w = do(t, r, http.MethodGet, base, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodGet, base+"/questions", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var qs []clarify.Question
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &qs))
	require.Len(t, qs, 1)
	assert.Equal(t, verify.InitialQuestions[0].ID, qs[0].ID)

	answer := map[string]any{"question_id": qs[0].ID, "response_text": "The faster one", "confidence": 0.8}
	w = do(t, r, http.MethodPost, base+"/responses", "alice", answer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp RespondResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Continues)
	assert.Equal(t, verify.ClarificationSessionID, resp.SessionID)

	w = do(t, r, http.MethodPost, base+"/responses", "alice", answer)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, base+"/abandon", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, base+"/output", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out OutputResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.Partial)
	assert.Contains(t, out.RefinedOutput, clarify.PartialNote)

	w = do(t, r, http.MethodGet, "/api/v1/history", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	assert.NotEmpty(t, events)

	w = do(t, r, http.MethodGet, "/api/v1/history/stats", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesPauseAndResume(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/verify", "alice", VerifyRequest{Text: hedged})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var verify VerifyResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verify))
	base := "/api/v1/clarifications/" + verify.ClarificationSessionID

	for _, step := range []struct {
		path   string
		user   string
		code   int
		status clarify.Status
	}{
		{"/pause", "bob", http.StatusForbidden, ""},
		{"/pause", "alice", http.StatusOK, clarify.StatusPaused},
		{"/pause", "alice", http.StatusOK, clarify.StatusPaused},
		{"/resume", "alice", http.StatusOK, clarify.StatusActive},
	} {
		w = do(t, r, http.MethodPost, base+step.path, step.user, nil)
		require.Equal(t, step.code, w.Code, step.path)
		if step.status == "" {
			continue
		}
		var snap clarify.Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		assert.Equal(t, step.status, snap.Status, step.path)
	}

	w = do(t, r, http.MethodPost, "/api/v1/clarifications/missing/pause", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutesErrorMapping(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"blank text", http.MethodPost, "/api/v1/assess", AssessRequest{Text: ""}, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/simulate", "not an object", http.StatusBadRequest},
		{"bad threshold", http.MethodPost, "/api/v1/verify", VerifyRequest{Text: hedged, EngagementThreshold: 2}, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/v1/clarifications/missing", nil, http.StatusNotFound},
		{"unknown session questions", http.MethodGet, "/api/v1/clarifications/missing/questions", nil, http.StatusNotFound},
		{"assess ok", http.MethodPost, "/api/v1/assess", AssessRequest{Text: hedged}, http.StatusOK},
		{"simulate ok", http.MethodPost, "/api/v1/simulate", SimulateRequest{Text: hedged}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, "alice", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: text", ErrInvalidInput), http.StatusBadRequest},
		{clarify.ErrInvalidConfidence, http.StatusBadRequest},
		{auth.ErrMissingIdentity, http.StatusUnauthorized},
		{auth.ErrAccessDenied, http.StatusForbidden},
		{clarify.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("loading: %w", clarify.ErrUnknownQuestion), http.StatusNotFound},
		{clarify.ErrAlreadyAnswered, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}
