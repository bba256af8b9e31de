package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

const profileColumns = `id, full_name, timezone, always_available, gender, age, subjects, status, updated_at`

// TeacherProfileRepository reads the scheduling view of teacher profiles.
type TeacherProfileRepository struct {
	db *sqlx.DB
}

// NewTeacherProfileRepository constructs the repository.
func NewTeacherProfileRepository(db *sqlx.DB) *TeacherProfileRepository {
	return &TeacherProfileRepository{db: db}
}

// FindByID returns a teacher profile by id.
func (r *TeacherProfileRepository) FindByID(ctx context.Context, id string) (*models.TeacherProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM teacher_profiles WHERE id = $1`
	var profile models.TeacherProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListActive returns active profiles, restricted to ids when provided.
func (r *TeacherProfileRepository) ListActive(ctx context.Context, ids []string) ([]models.TeacherProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM teacher_profiles WHERE status = 'active'`
	args := []interface{}{}
	if len(ids) > 0 {
		query += ` AND id = ANY($1)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY full_name ASC`

	var profiles []models.TeacherProfile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, fmt.Errorf("list teacher profiles: %w", err)
	}
	return profiles, nil
}
