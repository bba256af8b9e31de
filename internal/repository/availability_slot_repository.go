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

const slotColumns = `id, teacher_id, day_of_week, start_time, end_time, timezone, effective_from, effective_to, status, created_at, updated_at`

// AvailabilitySlotRepository persists weekly availability slots.
type AvailabilitySlotRepository struct {
	db *sqlx.DB
}

// NewAvailabilitySlotRepository constructs the repository.
func NewAvailabilitySlotRepository(db *sqlx.DB) *AvailabilitySlotRepository {
	return &AvailabilitySlotRepository{db: db}
}

// ListActiveByTeacher returns the teacher's active slots ordered by weekday and start time.
func (r *AvailabilitySlotRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM weekly_availability_slots
WHERE teacher_id = $1 AND status = 'active' ORDER BY day_of_week ASC, start_time ASC`
	var slots []models.WeeklyAvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list active availability slots: %w", err)
	}
	return slots, nil
}

// ListByTeacher returns every slot of the teacher including deactivated ones.
func (r *AvailabilitySlotRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM weekly_availability_slots
WHERE teacher_id = $1 ORDER BY day_of_week ASC, start_time ASC`
	var slots []models.WeeklyAvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list availability slots: %w", err)
	}
	return slots, nil
}

// FindByID returns a slot by id.
func (r *AvailabilitySlotRepository) FindByID(ctx context.Context, id string) (*models.WeeklyAvailabilitySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM weekly_availability_slots WHERE id = $1`
	var slot models.WeeklyAvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create inserts a new slot.
func (r *AvailabilitySlotRepository) Create(ctx context.Context, slot *models.WeeklyAvailabilitySlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	if slot.Status == "" {
		slot.Status = models.StatusActive
	}
	const query = `INSERT INTO weekly_availability_slots (id, teacher_id, day_of_week, start_time, end_time, timezone, effective_from, effective_to, status, created_at, updated_at)
VALUES (:id, :teacher_id, :day_of_week, :start_time, :end_time, :timezone, :effective_from, :effective_to, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create availability slot: %w", err)
	}
	return nil
}

// Update persists the mutable fields of a slot.
func (r *AvailabilitySlotRepository) Update(ctx context.Context, slot *models.WeeklyAvailabilitySlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE weekly_availability_slots
SET day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, timezone = :timezone,
    effective_from = :effective_from, effective_to = :effective_to, updated_at = :updated_at
WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, slot)
	if err != nil {
		return fmt.Errorf("update availability slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("availability slot rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus soft-activates or deactivates a slot.
func (r *AvailabilitySlotRepository) UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error {
	const query = `UPDATE weekly_availability_slots SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update availability slot status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("availability slot status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
