package clarify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/hitl/internal/db"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewSQLStore(database)
}

func storedSession(id string, status Status, created, updated time.Time) *Session {
	return &Session{
		ID:                    id,
		UserID:                "u1",
		OriginalOutput:        "original",
		Domain:                uncertainty.DomainTechnical,
		Strategy:              uncertainty.StrategyDialogue,
		Stage:                 StageInitialContext,
		Status:                status,
		Questions:             []Question{{ID: "q1", Text: "What?", Stage: StageInitialContext, Options: []string{"a"}}},
		Responses:             []Response{},
		LearnedContext:        map[string]map[string]string{BucketContext: {"What?": "this"}},
		ConfidenceProgression: []float64{0.4},
		CreatedAt:             created,
		UpdatedAt:             updated,
	}
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newSQLStore(t) },
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := newStore(t)

			_, err := st.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrSessionNotFound)
			assert.ErrorIs(t, st.Delete(ctx, "missing"), ErrSessionNotFound)

			s := storedSession("s1", StatusActive, now, now)
			require.NoError(t, st.Put(ctx, s))

			got, err := st.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, StageInitialContext, got.Stage)
			assert.Equal(t, []string{"a"}, got.Questions[0].Options)
			assert.Equal(t, "this", got.LearnedContext[BucketContext]["What?"])
			assert.True(t, now.Equal(got.CreatedAt))

			// Callers never share state with the store.
			got.LearnedContext[BucketContext]["What?"] = "changed"
			got.Questions[0].Options[0] = "b"
			again, err := st.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "this", again.LearnedContext[BucketContext]["What?"])
			assert.Equal(t, "a", again.Questions[0].Options[0])

			// Put overwrites.
			s.Stage = StageRequirements
			s.Status = StatusCompleted
			require.NoError(t, st.Put(ctx, s))
			again, err = st.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, StageRequirements, again.Stage)
			assert.Equal(t, StatusCompleted, again.Status)

			require.NoError(t, st.Delete(ctx, "s1"))
			_, err = st.Get(ctx, "s1")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStoreExpire(t *testing.T) {
	old := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 3, 1, 11, 30, 0, 0, time.UTC)
	cutoff := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, st := range map[string]Store{"memory": NewMemoryStore(), "sqlite": newSQLStore(t)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Put(ctx, storedSession("done-old", StatusCompleted, old, old)))
			require.NoError(t, st.Put(ctx, storedSession("done-recent", StatusAbandoned, old, recent)))
			require.NoError(t, st.Put(ctx, storedSession("active-old", StatusActive, old, recent)))
			require.NoError(t, st.Put(ctx, storedSession("active-new", StatusActive, recent, recent)))

			n, err := st.Expire(ctx, cutoff)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			for _, id := range []string{"done-recent", "active-new"} {
				_, err := st.Get(ctx, id)
				assert.NoError(t, err, id)
			}
			for _, id := range []string{"done-old", "active-old"} {
				_, err := st.Get(ctx, id)
				assert.ErrorIs(t, err, ErrSessionNotFound, id)
			}
		})
	}
}

func TestSQLStoreCountByStatus(t *testing.T) {
	ctx := context.Background()
	st := newSQLStore(t)
	now := time.Now().UTC()
	require.NoError(t, st.Put(ctx, storedSession("a", StatusActive, now, now)))
	require.NoError(t, st.Put(ctx, storedSession("b", StatusActive, now, now)))
	require.NoError(t, st.Put(ctx, storedSession("c", StatusCompleted, now, now)))

	counts, err := st.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Status]int{StatusActive: 2, StatusCompleted: 1}, counts)
}

func TestManagerWithSQLStore(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newSQLStore(t), uncertainty.DefaultProfiles())
	s := startTechnical(t, m)

	qs, err := m.NextQuestions(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, qs, 3)

	res, err := m.SubmitResponse(ctx, s.ID, qs[0].ID, "Decouple ingestion", 0.8, map[string]string{"team": "search"})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Responses, 1)
	assert.Equal(t, "search", got.Responses[0].Extra["team"])
	assert.Len(t, got.Questions, 3)
}

func TestMemoryStoreLen(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()
	require.NoError(t, st.Put(context.Background(), storedSession("a", StatusActive, now, now)))
	assert.Equal(t, 1, st.Len())
}
