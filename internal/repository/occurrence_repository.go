package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

const occurrenceColumns = `o.id, o.teacher_id, o.student_id, sp.full_name AS student_name, o.subject, o.scheduled_at, o.duration_minutes,
o.anchor, o.anchor_timezone, o.anchor_offset_minutes, o.recurring_pattern_id, o.occurrence_key, o.status, o.dst_adjustments,
o.created_at, o.updated_at`

const occurrenceFrom = ` FROM class_occurrences o LEFT JOIN student_profiles sp ON sp.id = o.student_id`

// OccurrenceRepository persists class occurrences.
type OccurrenceRepository struct {
	db *sqlx.DB
}

// NewOccurrenceRepository constructs the repository.
func NewOccurrenceRepository(db *sqlx.DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

func (r *OccurrenceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListBusyInRange returns scheduled or in-progress occurrences overlapping [start, end).
// excludeID is skipped when non-empty.
func (r *OccurrenceRepository) ListBusyInRange(ctx context.Context, teacherID string, start, end time.Time, excludeID string) ([]models.ClassOccurrence, error) {
	query := `SELECT ` + occurrenceColumns + occurrenceFrom + `
WHERE o.teacher_id = $1 AND o.status IN ('scheduled', 'in_progress')
AND o.scheduled_at < $3 AND o.scheduled_at + (o.duration_minutes * INTERVAL '1 minute') > $2`
	args := []interface{}{teacherID, start.UTC(), end.UTC()}
	if excludeID != "" {
		query += ` AND o.id <> $4`
		args = append(args, excludeID)
	}
	query += ` ORDER BY o.scheduled_at ASC`

	var items []models.ClassOccurrence
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list busy occurrences: %w", err)
	}
	return items, nil
}

// ListByTeacherInRange returns non-cancelled occurrences starting inside [start, end).
func (r *OccurrenceRepository) ListByTeacherInRange(ctx context.Context, teacherID string, start, end time.Time) ([]models.ClassOccurrence, error) {
	query := `SELECT ` + occurrenceColumns + occurrenceFrom + `
WHERE o.teacher_id = $1 AND o.status <> 'cancelled' AND o.scheduled_at >= $2 AND o.scheduled_at < $3
ORDER BY o.scheduled_at ASC`
	var items []models.ClassOccurrence
	if err := r.db.SelectContext(ctx, &items, query, teacherID, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("list teacher occurrences: %w", err)
	}
	return items, nil
}

// ListForReanchor returns scheduled occurrences anchored to timezone at or after from.
func (r *OccurrenceRepository) ListForReanchor(ctx context.Context, timezone string, from time.Time) ([]models.ClassOccurrence, error) {
	query := `SELECT ` + occurrenceColumns + occurrenceFrom + `
WHERE o.status = 'scheduled' AND o.anchor_timezone = $1 AND o.scheduled_at >= $2
ORDER BY o.scheduled_at ASC`
	var items []models.ClassOccurrence
	if err := r.db.SelectContext(ctx, &items, query, timezone, from.UTC()); err != nil {
		return nil, fmt.Errorf("list occurrences for reanchor: %w", err)
	}
	return items, nil
}

// ListAnchorTimezones returns the distinct anchor timezones of scheduled occurrences.
func (r *OccurrenceRepository) ListAnchorTimezones(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT anchor_timezone FROM class_occurrences
WHERE status = 'scheduled' AND anchor_timezone <> '' ORDER BY anchor_timezone ASC`
	var zones []string
	if err := r.db.SelectContext(ctx, &zones, query); err != nil {
		return nil, fmt.Errorf("list anchor timezones: %w", err)
	}
	return zones, nil
}

// FindByID returns an occurrence by id.
func (r *OccurrenceRepository) FindByID(ctx context.Context, id string) (*models.ClassOccurrence, error) {
	query := `SELECT ` + occurrenceColumns + occurrenceFrom + ` WHERE o.id = $1`
	var item models.ClassOccurrence
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

func prepareOccurrence(item *models.ClassOccurrence) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.ScheduledAt = item.ScheduledAt.UTC()
	if item.Status == "" {
		item.Status = models.OccurrenceScheduled
	}
	if len(item.DSTAdjustments) == 0 {
		item.DSTAdjustments = types.JSONText("[]")
	}
}

const insertOccurrence = `INSERT INTO class_occurrences (id, teacher_id, student_id, subject, scheduled_at, duration_minutes, anchor,
anchor_timezone, anchor_offset_minutes, recurring_pattern_id, occurrence_key, status, dst_adjustments, created_at, updated_at)
VALUES (:id, :teacher_id, :student_id, :subject, :scheduled_at, :duration_minutes, :anchor,
:anchor_timezone, :anchor_offset_minutes, :recurring_pattern_id, :occurrence_key, :status, :dst_adjustments, :created_at, :updated_at)`

// Create inserts a one-off occurrence.
func (r *OccurrenceRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) error {
	prepareOccurrence(item)
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), insertOccurrence, item); err != nil {
		return fmt.Errorf("create occurrence: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts a pattern occurrence unless its (pattern, occurrence key) already exists.
// It reports whether a row was created.
func (r *OccurrenceRepository) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) (bool, error) {
	prepareOccurrence(item)
	query, args, err := sqlx.Named(insertOccurrence+`
ON CONFLICT (recurring_pattern_id, occurrence_key) DO NOTHING RETURNING id`, item)
	if err != nil {
		return false, fmt.Errorf("bind occurrence insert: %w", err)
	}
	target := r.exec(exec)
	query = target.Rebind(query)

	var id string
	if err := target.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert pattern occurrence: %w", err)
	}
	item.ID = id
	return true, nil
}

// UpdateSchedule rewrites the instant, anchor offset and audit log of an occurrence.
func (r *OccurrenceRepository) UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_occurrences
SET scheduled_at = $2, duration_minutes = $3, anchor_offset_minutes = $4, dst_adjustments = $5, updated_at = $6
WHERE id = $1`
	res, err := r.exec(exec).ExecContext(ctx, query, item.ID, item.ScheduledAt.UTC(), item.DurationMinutes, item.AnchorOffsetMinutes, item.DSTAdjustments, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update occurrence schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("occurrence schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus moves an occurrence through its lifecycle.
func (r *OccurrenceRepository) UpdateStatus(ctx context.Context, id string, status models.OccurrenceStatus) error {
	const query = `UPDATE class_occurrences SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update occurrence status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("occurrence status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
