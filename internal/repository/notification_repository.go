package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

// NotificationRepository writes notifications to the outbox consumed by the delivery service.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert appends a pending notification to the outbox.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	if len(n.Metadata) == 0 {
		n.Metadata = types.JSONText("{}")
	}
	const query = `INSERT INTO notification_outbox (id, recipient_id, title, body, metadata, status, created_at)
VALUES (:id, :recipient_id, :title, :body, :metadata, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
