package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/hitl/internal/db"
	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// Store provides CRUD operations for the delivery log.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new notification. If n.ID is empty a UUID is generated.
func (s *Store) Create(ctx context.Context, n Notification) (string, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	delivered := 0
	if n.Delivered {
		delivered = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, request_id, session_id, priority, domain, payload, delivered, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RequestID, n.SessionID, string(n.Priority), string(n.Domain),
		string(n.Payload), delivered, n.Attempts, n.LastError,
		n.CreatedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return "", fmt.Errorf("inserting notification: %w", err)
	}
	return n.ID, nil
}

const selectNotifications = `SELECT id, request_id, session_id, priority, domain, payload,
	delivered, attempts, last_error, created_at FROM notifications`

// GetByID retrieves a single notification.
func (s *Store) GetByID(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx, selectNotifications+" WHERE id = ?", id)
	n, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

// ListFilter narrows List results.
type ListFilter struct {
	Delivered *bool
	Priority  routing.Priority
	Since     time.Time
	Limit     int
}

// List returns notifications matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Notification, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Delivered != nil {
		clauses = append(clauses, "delivered = ?")
		if *filter.Delivered {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if filter.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}

	query := selectNotifications
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		n, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// GetPending returns notifications not yet delivered, oldest first.
func (s *Store) GetPending(ctx context.Context) ([]Notification, error) {
	pending := false
	list, err := s.List(ctx, ListFilter{Delivered: &pending})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// RecordAttempt stores the outcome of one delivery attempt. A nil deliveryErr
// marks the notification delivered.
func (s *Store) RecordAttempt(ctx context.Context, id string, deliveryErr error) error {
	var (
		res sql.Result
		err error
	)
	if deliveryErr == nil {
		res, err = s.db.ExecContext(ctx,
			"UPDATE notifications SET delivered = 1, attempts = attempts + 1, last_error = '' WHERE id = ?", id)
	} else {
		res, err = s.db.ExecContext(ctx,
			"UPDATE notifications SET attempts = attempts + 1, last_error = ? WHERE id = ?", deliveryErr.Error(), id)
	}
	if err != nil {
		return fmt.Errorf("recording delivery attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Notification, error) {
	var (
		n                         Notification
		priority, domain, payload string
		createdAt                 string
		delivered                 int
	)
	if err := sc.Scan(&n.ID, &n.RequestID, &n.SessionID, &priority, &domain, &payload,
		&delivered, &n.Attempts, &n.LastError, &createdAt); err != nil {
		return nil, err
	}
	n.Priority = routing.Priority(priority)
	n.Domain = uncertainty.Domain(domain)
	n.Payload = []byte(payload)
	n.Delivered = delivered != 0
	if t, err := time.Parse(time.DateTime, createdAt); err == nil {
		n.CreatedAt = t
	} else if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		n.CreatedAt = t
	}
	return &n, nil
}
