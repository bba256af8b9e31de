package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationStatus tracks outbox delivery handoff.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
)

// Notification is a fire-and-forget message for the external delivery service.
type Notification struct {
	ID          string             `db:"id" json:"id"`
	RecipientID string             `db:"recipient_id" json:"recipient_id"`
	Title       string             `db:"title" json:"title"`
	Body        string             `db:"body" json:"body"`
	Metadata    types.JSONText     `db:"metadata" json:"metadata,omitempty"`
	Status      NotificationStatus `db:"status" json:"status"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}
