package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/hitl/internal/db"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	events := []routing.Event{
		{ID: "e1", Timestamp: base, Kind: routing.EventRouted, UserID: "alice",
			Domain: uncertainty.DomainTechnical, Strategy: uncertainty.StrategyDialogue, Overall: 0.5,
			Sources: []uncertainty.Source{uncertainty.SourceAmbiguousLanguage}},
		{ID: "e2", Timestamp: base.Add(time.Minute), Kind: routing.EventRouted, UserID: "bob",
			Domain: uncertainty.DomainCompliance, Strategy: uncertainty.StrategyExpert, Overall: 0.45},
		{ID: "e3", Timestamp: base.Add(2 * time.Minute), Kind: routing.EventComplianceAudit, UserID: "bob",
			SessionID: "s1", Domain: uncertainty.DomainCompliance, Strategy: uncertainty.StrategyExpert, Fallback: true},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}
}

func TestAppendAndGetByID(t *testing.T) {
	store := setupStore(t)
	seed(t, store)

	got, err := store.GetByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, routing.EventRouted, got.Kind)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, uncertainty.DomainTechnical, got.Domain)
	assert.Equal(t, []uncertainty.Source{uncertainty.SourceAmbiguousLanguage}, got.Sources)
	assert.InDelta(t, 0.5, got.Overall, 1e-9)
	assert.True(t, base.Equal(got.Timestamp))

	e3, err := store.GetByID(context.Background(), "e3")
	require.NoError(t, err)
	assert.True(t, e3.Fallback)
	assert.Nil(t, e3.Sources)

	_, err = store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendGeneratesID(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.Append(context.Background(), routing.Event{Kind: routing.EventSessionStarted}))

	events, err := store.List(context.Background(), routing.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestQueryFilters(t *testing.T) {
	store := setupStore(t)
	seed(t, store)
	ctx := context.Background()

	all, err := store.List(ctx, routing.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e3", all[0].ID, "newest first")

	bob, err := store.List(ctx, routing.HistoryFilter{UserID: "bob", Kind: routing.EventRouted})
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, "e2", bob[0].ID)

	since := base.Add(30 * time.Second)
	recent, err := store.List(ctx, routing.HistoryFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	paged, err := store.Query(ctx, QueryFilter{HistoryFilter: routing.HistoryFilter{Limit: 1}, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "e2", paged[0].ID)

	stats := routing.StrategyStats(all)
	require.Len(t, stats, 2, "fallback and non-routed events are excluded")
}

func TestDeleteBefore(t *testing.T) {
	store := setupStore(t)
	seed(t, store)

	n, err := store.DeleteBefore(context.Background(), base.Add(90*time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRoutes(t *testing.T) {
	store := setupStore(t)
	seed(t, store)

	r := chi.NewRouter()
	RegisterRoutes(r, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/?domain=compliance&limit=10", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []routing.Event
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	assert.Len(t, events, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/audit/e1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/audit/nope", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutesGuard(t *testing.T) {
	store := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, store, func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
