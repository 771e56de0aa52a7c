package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/hitl/internal/db"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Store is a routing.History backed by the engagement_events table.
type Store struct {
	db  *db.DB
	now func() time.Time
}

var _ routing.History = (*Store)(nil)

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

// Append inserts an event. If e.ID is empty a UUID is generated.
func (s *Store) Append(ctx context.Context, e routing.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	sources := e.Sources
	if sources == nil {
		sources = []uncertainty.Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshalling sources: %w", err)
	}
	fallback := 0
	if e.Fallback {
		fallback = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engagement_events (
			id, timestamp, kind, request_id, session_id, user_id,
			domain, strategy, overall, sources, fallback, summary, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(time.DateTime),
		string(e.Kind),
		e.RequestID,
		e.SessionID,
		e.UserID,
		string(e.Domain),
		string(e.Strategy),
		e.Overall,
		string(sourcesJSON),
		fallback,
		e.Summary,
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting engagement event: %w", err)
	}
	return nil
}

const selectEvents = `SELECT id, timestamp, kind, request_id, session_id, user_id,
	domain, strategy, overall, sources, fallback, summary, detail FROM engagement_events`

// GetByID retrieves a single event.
func (s *Store) GetByID(ctx context.Context, id string) (*routing.Event, error) {
	row := s.db.QueryRowContext(ctx, selectEvents+" WHERE id = ?", id)
	e, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns matching events, newest first.
func (s *Store) List(ctx context.Context, f routing.HistoryFilter) ([]routing.Event, error) {
	return s.Query(ctx, QueryFilter{HistoryFilter: f})
}

// Query returns events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]routing.Event, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Domain != "" {
		clauses = append(clauses, "domain = ?")
		args = append(args, string(filter.Domain))
	}
	if filter.Strategy != "" {
		clauses = append(clauses, "strategy = ?")
		args = append(args, string(filter.Strategy))
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(time.DateTime))
	}

	query := selectEvents
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	// rowid breaks ties between events logged within the same second.
	query += " ORDER BY timestamp DESC, rowid DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying engagement events: %w", err)
	}
	defer rows.Close()

	var events []routing.Event
	for rows.Next() {
		e, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// DeleteBefore removes all events older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM engagement_events WHERE timestamp < ?",
		before.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old engagement events: %w", err)
	}
	return res.RowsAffected()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*routing.Event, error) {
	var (
		e                          routing.Event
		ts, kind, domain, strategy string
		sourcesJSON                string
		fallback                   int
	)

	err := sc.Scan(
		&e.ID, &ts, &kind, &e.RequestID, &e.SessionID, &e.UserID,
		&domain, &strategy, &e.Overall, &sourcesJSON, &fallback, &e.Summary, &e.Detail,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = routing.EventKind(kind)
	e.Domain = uncertainty.Domain(domain)
	e.Strategy = uncertainty.Strategy(strategy)
	e.Fallback = fallback != 0

	if t, parseErr := time.Parse(time.DateTime, ts); parseErr == nil {
		e.Timestamp = t
	} else if t, parseErr := time.Parse(time.RFC3339, ts); parseErr == nil {
		e.Timestamp = t
	}

	if err := json.Unmarshal([]byte(sourcesJSON), &e.Sources); err != nil || len(e.Sources) == 0 {
		e.Sources = nil
	}

	return &e, nil
}
