// Package audit persists the engagement history in SQLite.
package audit

import (
	"errors"
	"time"

	"github.com/ziadkadry99/hitl/internal/routing"
)

// ErrNotFound is returned when an event id does not exist.
var ErrNotFound = errors.New("audit event not found")

// QueryFilter extends the history filter with paging and an upper bound.
type QueryFilter struct {
	routing.HistoryFilter
	Until  *time.Time
	Offset int
}
