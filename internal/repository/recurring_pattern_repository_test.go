package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

func TestRecurringPatternRepositoryFindAndResolve(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewRecurringPatternRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "student_id", "subject", "anchor", "slots", "anchor_instant", "anchor_timezone",
		"duration_minutes", "horizon_months", "generated_through", "status", "created_at", "updated_at"}).
		AddRow("pattern-1", "teacher-1", "student-1", "math", "student", `{"wednesday":[{"hour":15,"minute":30,"duration":55,"timezone":"Africa/Cairo"}]}`,
			nil, "Africa/Cairo", 55, 2, nil, "active", now, now)
	mock.ExpectQuery("FROM recurring_patterns WHERE id = \\$1").WithArgs("pattern-1").WillReturnRows(rows)

	pattern, err := repo.FindByID(context.Background(), "pattern-1")
	require.NoError(t, err)
	source, err := pattern.ResolveSource()
	require.NoError(t, err)
	assert.Equal(t, models.SourceExplicitPerDaySlots, source.Kind)
	require.Len(t, source.Slots[time.Wednesday], 1)
	assert.Equal(t, 30, source.Slots[time.Wednesday][0].Minute)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecurringPatternRepositoryUpdateWatermarkMissing(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewRecurringPatternRepository(db)
	through := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE recurring_patterns SET generated_through").
		WithArgs("pattern-x", through, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateWatermark(context.Background(), nil, "pattern-x", through)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
