package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

const patternColumns = `id, teacher_id, student_id, subject, anchor, slots, anchor_instant, anchor_timezone, duration_minutes,
horizon_months, generated_through, status, created_at, updated_at`

// RecurringPatternRepository persists weekly lesson patterns and their generation watermark.
type RecurringPatternRepository struct {
	db *sqlx.DB
}

// NewRecurringPatternRepository constructs the repository.
func NewRecurringPatternRepository(db *sqlx.DB) *RecurringPatternRepository {
	return &RecurringPatternRepository{db: db}
}

func (r *RecurringPatternRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a pattern by id.
func (r *RecurringPatternRepository) FindByID(ctx context.Context, id string) (*models.RecurringPattern, error) {
	query := `SELECT ` + patternColumns + ` FROM recurring_patterns WHERE id = $1`
	var pattern models.RecurringPattern
	if err := r.db.GetContext(ctx, &pattern, query, id); err != nil {
		return nil, err
	}
	return &pattern, nil
}

// ListActive returns every active pattern ordered by creation.
func (r *RecurringPatternRepository) ListActive(ctx context.Context) ([]models.RecurringPattern, error) {
	query := `SELECT ` + patternColumns + ` FROM recurring_patterns WHERE status = 'active' ORDER BY created_at ASC`
	var patterns []models.RecurringPattern
	if err := r.db.SelectContext(ctx, &patterns, query); err != nil {
		return nil, fmt.Errorf("list active patterns: %w", err)
	}
	return patterns, nil
}

// Create inserts a new pattern.
func (r *RecurringPatternRepository) Create(ctx context.Context, pattern *models.RecurringPattern) error {
	if pattern.ID == "" {
		pattern.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	pattern.CreatedAt = now
	pattern.UpdatedAt = now
	if pattern.Status == "" {
		pattern.Status = models.PatternActive
	}
	if len(pattern.Slots) == 0 {
		pattern.Slots = types.JSONText("{}")
	}
	const query = `INSERT INTO recurring_patterns (id, teacher_id, student_id, subject, anchor, slots, anchor_instant, anchor_timezone,
duration_minutes, horizon_months, generated_through, status, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :subject, :anchor, :slots, :anchor_instant, :anchor_timezone,
:duration_minutes, :horizon_months, :generated_through, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, pattern); err != nil {
		return fmt.Errorf("create recurring pattern: %w", err)
	}
	return nil
}

// UpdateWatermark advances the date through which the pattern has been materialised.
func (r *RecurringPatternRepository) UpdateWatermark(ctx context.Context, exec sqlx.ExtContext, id string, through time.Time) error {
	const query = `UPDATE recurring_patterns SET generated_through = $2, updated_at = $3 WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, id, through.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update pattern watermark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pattern watermark rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
