// Package notifications delivers engagement requests to an external
// webhook and keeps a delivery log.
package notifications

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ziadkadry99/hitl/internal/routing"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// ErrNotFound is returned when a notification id does not exist.
var ErrNotFound = errors.New("notification not found")

// Notification is one engagement request queued for webhook delivery.
type Notification struct {
	ID        string             `json:"id"`
	RequestID string             `json:"request_id"`
	SessionID string             `json:"session_id,omitempty"`
	Priority  routing.Priority   `json:"priority"`
	Domain    uncertainty.Domain `json:"domain"`
	Payload   json.RawMessage    `json:"payload"`
	Delivered bool               `json:"delivered"`
	Attempts  int                `json:"attempts"`
	LastError string             `json:"last_error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// webhookBody is what subscribers receive.
type webhookBody struct {
	Event   string                     `json:"event"`
	ID      string                     `json:"notification_id"`
	Request *routing.EngagementRequest `json:"engagement_request"`
}
