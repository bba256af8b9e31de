package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

const unavailabilityColumns = `id, teacher_id, start_at, end_at, reason, approval, status, created_at, updated_at`

// UnavailabilityRepository persists teacher unavailability periods.
type UnavailabilityRepository struct {
	db *sqlx.DB
}

// NewUnavailabilityRepository constructs the repository.
func NewUnavailabilityRepository(db *sqlx.DB) *UnavailabilityRepository {
	return &UnavailabilityRepository{db: db}
}

// ListBlockingInRange returns active, approved periods overlapping [start, end).
func (r *UnavailabilityRepository) ListBlockingInRange(ctx context.Context, teacherID string, start, end time.Time) ([]models.UnavailabilityPeriod, error) {
	query := `SELECT ` + unavailabilityColumns + ` FROM unavailability_periods
WHERE teacher_id = $1 AND status = 'active' AND approval = 'approved' AND start_at < $3 AND end_at > $2
ORDER BY start_at ASC`
	var periods []models.UnavailabilityPeriod
	if err := r.db.SelectContext(ctx, &periods, query, teacherID, start.UTC(), end.UTC()); err != nil {
		return nil, fmt.Errorf("list blocking unavailability: %w", err)
	}
	return periods, nil
}

// ListByTeacher returns the teacher's periods, newest first.
func (r *UnavailabilityRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.UnavailabilityPeriod, error) {
	query := `SELECT ` + unavailabilityColumns + ` FROM unavailability_periods WHERE teacher_id = $1 ORDER BY start_at DESC`
	var periods []models.UnavailabilityPeriod
	if err := r.db.SelectContext(ctx, &periods, query, teacherID); err != nil {
		return nil, fmt.Errorf("list unavailability: %w", err)
	}
	return periods, nil
}

// FindByID returns a period by id.
func (r *UnavailabilityRepository) FindByID(ctx context.Context, id string) (*models.UnavailabilityPeriod, error) {
	query := `SELECT ` + unavailabilityColumns + ` FROM unavailability_periods WHERE id = $1`
	var period models.UnavailabilityPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// Create inserts a new period.
func (r *UnavailabilityRepository) Create(ctx context.Context, period *models.UnavailabilityPeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	period.CreatedAt = now
	period.UpdatedAt = now
	period.StartAt = period.StartAt.UTC()
	period.EndAt = period.EndAt.UTC()
	const query = `INSERT INTO unavailability_periods (id, teacher_id, start_at, end_at, reason, approval, status, created_at, updated_at)
VALUES (:id, :teacher_id, :start_at, :end_at, :reason, :approval, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create unavailability: %w", err)
	}
	return nil
}

// UpdateApproval records the review decision for a period.
func (r *UnavailabilityRepository) UpdateApproval(ctx context.Context, id string, approval models.ApprovalStatus) error {
	const query = `UPDATE unavailability_periods SET approval = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, approval, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update unavailability approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unavailability approval rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus soft-deactivates a period.
func (r *UnavailabilityRepository) UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error {
	const query = `UPDATE unavailability_periods SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update unavailability status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unavailability status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
