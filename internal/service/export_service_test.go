package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

func newExportFixture(t *testing.T) (*ExportService, availabilityFixture) {
	t.Helper()
	f := newAvailabilityFixture(cairoMondaySlot())
	f.occs.items = append(f.occs.items, models.ClassOccurrence{
		ID: "occ-1", TeacherID: "teacher-1", StudentID: "student-1", Subject: strPtr("math"),
		ScheduledAt: time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC), DurationMinutes: 30,
		Status: models.OccurrenceScheduled,
	})
	svc := NewExportService(f.svc, f.occs, f.profile, ExportConfig{}, zap.NewNop(), nil, nil, nil)
	return svc, f
}

func TestExportFreeSummaryCSV(t *testing.T) {
	svc, _ := newExportFixture(t)
	from := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	result, err := svc.FreeSummaryCSV(context.Background(), "teacher-1", from, from.Add(24*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "free-teacher-1.csv", result.Filename)

	lines := strings.Split(strings.TrimSpace(string(result.Body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Start,End,Minutes", lines[0])
	assert.Equal(t, "2025-03-10T17:00:00+02:00,2025-03-10T17:30:00+02:00,30", lines[1])
	assert.Equal(t, "2025-03-10T18:00:00+02:00,2025-03-10T19:00:00+02:00,60", lines[2])
}

func TestExportFreeSummaryPDF(t *testing.T) {
	svc, _ := newExportFixture(t)
	from := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	result, err := svc.FreeSummaryPDF(context.Background(), "teacher-1", from, from.Add(24*time.Hour), "UTC")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Body), "%PDF"))
}

func TestExportCalendarFeed(t *testing.T) {
	svc, _ := newExportFixture(t)
	from := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	result, err := svc.CalendarFeed(context.Background(), "teacher-1", from, from.AddDate(0, 1, 0))
	require.NoError(t, err)
	body := string(result.Body)
	assert.Contains(t, body, "UID:occ-1@tutor-scheduler")
	assert.Contains(t, body, "SUMMARY:math lesson")
	assert.Contains(t, body, "DTSTART:20250310T153000Z")

	_, err = svc.CalendarFeed(context.Background(), "ghost", from, from.AddDate(0, 1, 0))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestExportRejectsOversizedRange(t *testing.T) {
	svc, _ := newExportFixture(t)
	from := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.FreeSummaryCSV(context.Background(), "teacher-1", from, from.AddDate(1, 0, 0), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.CalendarFeed(context.Background(), "teacher-1", from, from)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
