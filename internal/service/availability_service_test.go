package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

type availabilityFixture struct {
	svc     *AvailabilityService
	slots   *slotStoreStub
	periods *periodStoreStub
	occs    *occurrenceStoreStub
	profile *profileStoreStub
}

func newAvailabilityFixture(slots ...models.WeeklyAvailabilitySlot) availabilityFixture {
	f := availabilityFixture{
		slots:   &slotStoreStub{items: slots},
		periods: &periodStoreStub{},
		occs:    &occurrenceStoreStub{},
		profile: newProfileStore(models.TeacherProfile{ID: "teacher-1", FullName: "Amina Farouk", Timezone: "Africa/Cairo"}),
	}
	f.svc = NewAvailabilityService(f.profile, f.slots, f.periods, f.occs, nil, zap.NewNop())
	return f
}

func cairoMondaySlot() models.WeeklyAvailabilitySlot {
	return models.WeeklyAvailabilitySlot{
		ID: "slot-1", TeacherID: "teacher-1", DayOfWeek: int(time.Monday),
		StartTime: "17:00", EndTime: "19:00", Timezone: "Africa/Cairo", Status: models.StatusActive,
	}
}

func TestCheckAvailabilityCairoMondaySlot(t *testing.T) {
	cairo := mustLoc(t, "Africa/Cairo")
	f := newAvailabilityFixture(cairoMondaySlot())
	ctx := context.Background()

	inside, err := f.svc.CheckAvailability(ctx, "teacher-1",
		time.Date(2025, time.March, 10, 17, 30, 0, 0, cairo), time.Date(2025, time.March, 10, 18, 15, 0, 0, cairo), "")
	require.NoError(t, err)
	assert.True(t, inside.Available)

	pastEnd, err := f.svc.CheckAvailability(ctx, "teacher-1",
		time.Date(2025, time.March, 10, 18, 30, 0, 0, cairo), time.Date(2025, time.March, 10, 19, 30, 0, 0, cairo), "")
	require.NoError(t, err)
	assert.False(t, pastEnd.Available)
	assert.Equal(t, models.ConflictNoWeeklySlot, pastEnd.ConflictType)

	wrongDay, err := f.svc.CheckAvailability(ctx, "teacher-1",
		time.Date(2025, time.March, 11, 17, 30, 0, 0, cairo), time.Date(2025, time.March, 11, 18, 0, 0, 0, cairo), "")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictNoWeeklySlot, wrongDay.ConflictType)
}

func TestCheckAvailabilityRejectsCrossMidnightWindow(t *testing.T) {
	cairo := mustLoc(t, "Africa/Cairo")
	slot := cairoMondaySlot()
	slot.StartTime, slot.EndTime = "20:00", "24:00"
	f := newAvailabilityFixture(slot)

	res, err := f.svc.CheckAvailability(context.Background(), "teacher-1",
		time.Date(2025, time.March, 10, 23, 30, 0, 0, cairo), time.Date(2025, time.March, 11, 0, 30, 0, 0, cairo), "")
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, models.ConflictNoWeeklySlot, res.ConflictType)
}

func TestCheckAvailabilityHonoursEffectiveRange(t *testing.T) {
	cairo := mustLoc(t, "Africa/Cairo")
	slot := cairoMondaySlot()
	from := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	slot.EffectiveFrom = &from
	f := newAvailabilityFixture(slot)

	res, err := f.svc.CheckAvailability(context.Background(), "teacher-1",
		time.Date(2025, time.March, 10, 17, 30, 0, 0, cairo), time.Date(2025, time.March, 10, 18, 0, 0, 0, cairo), "")
	require.NoError(t, err)
	assert.Equal(t, models.ConflictNoWeeklySlot, res.ConflictType)
}

func TestCheckAvailabilityWithoutSlotsIsEligible(t *testing.T) {
	f := newAvailabilityFixture()
	start := time.Date(2025, time.March, 12, 3, 0, 0, 0, time.UTC)

	res, err := f.svc.CheckAvailability(context.Background(), "teacher-1", start, start.Add(time.Hour), "")
	require.NoError(t, err)
	assert.True(t, res.Available)
}

func TestCheckAvailabilityReportsUnavailablePeriodFirst(t *testing.T) {
	f := newAvailabilityFixture()
	start := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)
	f.periods.items = []models.UnavailabilityPeriod{
		{ID: "pending", TeacherID: "teacher-1", StartAt: start, EndAt: start.Add(time.Hour), Approval: models.ApprovalPending, Status: models.StatusActive},
		{ID: "leave", TeacherID: "teacher-1", StartAt: start.Add(-time.Hour), EndAt: start.Add(15 * time.Minute), Reason: "travel", Approval: models.ApprovalApproved, Status: models.StatusActive},
	}
	f.occs.items = []models.ClassOccurrence{{ID: "occ-1", TeacherID: "teacher-1", ScheduledAt: start, DurationMinutes: 60, Status: models.OccurrenceScheduled}}

	res, err := f.svc.CheckAvailability(context.Background(), "teacher-1", start, start.Add(time.Hour), "")
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, models.ConflictUnavailablePeriod, res.ConflictType)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, "leave", res.Conflict.ID)
	assert.Equal(t, "travel", *res.Conflict.Reason)
}

func TestCheckAvailabilityExistingClassConflictIsSymmetric(t *testing.T) {
	f := newAvailabilityFixture()
	base := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)
	f.occs.items = []models.ClassOccurrence{
		{ID: "done", TeacherID: "teacher-1", ScheduledAt: base, DurationMinutes: 60, Status: models.OccurrenceCompleted},
		{ID: "touching", TeacherID: "teacher-1", ScheduledAt: base.Add(-time.Hour), DurationMinutes: 60, Status: models.OccurrenceScheduled},
		{ID: "live", TeacherID: "teacher-1", StudentName: strPtr("Laila"), Subject: strPtr("math"), ScheduledAt: base.Add(45 * time.Minute), DurationMinutes: 30, Status: models.OccurrenceInProgress},
	}
	start, end := base, base.Add(time.Hour)

	res, err := f.svc.CheckAvailability(context.Background(), "teacher-1", start, end, "")
	require.NoError(t, err)
	require.False(t, res.Available)
	assert.Equal(t, models.ConflictExistingClass, res.ConflictType)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, "live", res.Conflict.ID)
	assert.Equal(t, "Laila", *res.Conflict.Counterpart)
	assert.True(t, res.Conflict.Start.Before(end) && res.Conflict.End.After(start))

	again, err := f.svc.CheckAvailability(context.Background(), "teacher-1", start, end, "live")
	require.NoError(t, err)
	assert.True(t, again.Available)
}

func TestCheckAvailabilityErrors(t *testing.T) {
	f := newAvailabilityFixture()
	start := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

	_, err := f.svc.CheckAvailability(context.Background(), "teacher-1", start, start, "")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.CheckAvailability(context.Background(), "ghost", start, start.Add(time.Hour), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	f.occs.err = errors.New("connection refused")
	_, err = f.svc.CheckAvailability(context.Background(), "teacher-1", start, start.Add(time.Hour), "")
	assert.True(t, appErrors.Is(err, appErrors.ErrUpstreamUnavailable))
}

func TestFreeSegmentsSubtractsMergedBusyTime(t *testing.T) {
	f := newAvailabilityFixture()
	day := time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)
	f.occs.items = []models.ClassOccurrence{
		{ID: "a", TeacherID: "teacher-1", ScheduledAt: day.Add(time.Hour), DurationMinutes: 60, Status: models.OccurrenceScheduled},
		{ID: "b", TeacherID: "teacher-1", ScheduledAt: day.Add(90 * time.Minute), DurationMinutes: 60, Status: models.OccurrenceScheduled},
	}
	f.periods.items = []models.UnavailabilityPeriod{
		{ID: "p", TeacherID: "teacher-1", StartAt: day.Add(-time.Hour), EndAt: day.Add(30 * time.Minute), Approval: models.ApprovalApproved, Status: models.StatusActive},
	}

	free, err := f.svc.FreeSegments(context.Background(), "teacher-1", day, day.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, free, 2)
	assert.Equal(t, day.Add(30*time.Minute), free[0].Start)
	assert.Equal(t, day.Add(time.Hour), free[0].End)
	assert.Equal(t, day.Add(150*time.Minute), free[1].Start)
	assert.Equal(t, day.Add(4*time.Hour), free[1].End)
	assert.Equal(t, interval.TypeFree, free[1].Type)
}

func TestFreeSummaryRendersDisplayTimezone(t *testing.T) {
	f := newAvailabilityFixture()
	from := time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)

	summary, err := f.svc.FreeSummary(context.Background(), "teacher-1", from, from.Add(2*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, "Africa/Cairo", summary.Timezone)
	require.Len(t, summary.Segments, 1)
	assert.Equal(t, "2025-03-12T10:00:00+02:00", summary.Segments[0].LocalStart)
	assert.Equal(t, 120, summary.TotalMins)

	_, err = f.svc.FreeSummary(context.Background(), "teacher-1", from, from.Add(time.Hour), "Mars/Olympus")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
