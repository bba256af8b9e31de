package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
)

func TestUnavailabilityRepositoryListBlockingInRange(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUnavailabilityRepository(db)
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	rows := sqlmock.NewRows([]string{"id", "teacher_id", "start_at", "end_at", "reason", "approval", "status", "created_at", "updated_at"}).
		AddRow("period-1", "teacher-1", start.Add(-time.Hour), start.Add(30*time.Minute), "dentist", "approved", "active", start, start)
	mock.ExpectQuery("FROM unavailability_periods\\s+WHERE teacher_id = \\$1 AND status = 'active' AND approval = 'approved' AND start_at < \\$3 AND end_at > \\$2").
		WithArgs("teacher-1", start, end).
		WillReturnRows(rows)

	periods, err := repo.ListBlockingInRange(context.Background(), "teacher-1", start, end)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.True(t, periods[0].Blocks())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnavailabilityRepositoryUpdateApproval(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewUnavailabilityRepository(db)

	mock.ExpectExec("UPDATE unavailability_periods SET approval").
		WithArgs("period-1", models.ApprovalApproved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateApproval(context.Background(), "period-1", models.ApprovalApproved))
	assert.NoError(t, mock.ExpectationsWereMet())
}
