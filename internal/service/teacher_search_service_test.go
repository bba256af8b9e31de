package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

type failingEngine struct {
	inner  freeSegmentFinder
	failID string
}

func (f failingEngine) FreeSegments(ctx context.Context, teacherID string, start, end time.Time) ([]interval.Interval, error) {
	if teacherID == f.failID {
		return nil, appErrors.Upstream(errors.New("statement timeout"), "failed to load booked classes")
	}
	return f.inner.FreeSegments(ctx, teacherID, start, end)
}

type stallingEngine struct {
	inner  freeSegmentFinder
	slowID string
}

func (s stallingEngine) FreeSegments(ctx context.Context, teacherID string, start, end time.Time) ([]interval.Interval, error) {
	if teacherID == s.slowID {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.inner.FreeSegments(ctx, teacherID, start, end)
}

type searchFixture struct {
	svc      *TeacherSearchService
	profiles *profileStoreStub
	slots    *slotStoreStub
	periods  *periodStoreStub
	occs     *occurrenceStoreStub
	engine   *AvailabilityService
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()
	f := &searchFixture{
		profiles: newProfileStore(
			models.TeacherProfile{ID: "t-amina", FullName: "Amina Farouk", Timezone: "Africa/Cairo", Subjects: pq.StringArray{"math"}},
			models.TeacherProfile{ID: "t-basma", FullName: "Basma Nour", Timezone: "Africa/Cairo", Subjects: pq.StringArray{"Math"}},
			models.TeacherProfile{ID: "t-chen", FullName: "Chen Wei", Timezone: "Africa/Cairo", AlwaysAvailable: true, Subjects: pq.StringArray{"math"}},
			models.TeacherProfile{ID: "t-dina", FullName: "Dina Saleh", Timezone: "Africa/Cairo", Subjects: pq.StringArray{"math"}},
			models.TeacherProfile{ID: "t-eve", FullName: "Eve Adams", Timezone: "Africa/Cairo", Subjects: pq.StringArray{"art"}},
		),
		slots: &slotStoreStub{items: []models.WeeklyAvailabilitySlot{
			{ID: "s-amina", TeacherID: "t-amina", DayOfWeek: int(time.Monday), StartTime: "17:00", EndTime: "19:00", Timezone: "Africa/Cairo", Status: models.StatusActive},
			{ID: "s-basma", TeacherID: "t-basma", DayOfWeek: int(time.Monday), StartTime: "09:00", EndTime: "12:00", Timezone: "Africa/Cairo", Status: models.StatusActive},
		}},
		periods: &periodStoreStub{items: []models.UnavailabilityPeriod{{
			ID: "leave", TeacherID: "t-dina", Approval: models.ApprovalApproved, Status: models.StatusActive,
			StartAt: time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC), EndAt: time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC),
		}}},
		occs: &occurrenceStoreStub{items: []models.ClassOccurrence{{
			ID: "busy", TeacherID: "t-chen", ScheduledAt: time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC),
			DurationMinutes: 60, Status: models.OccurrenceScheduled,
		}}},
	}
	f.engine = NewAvailabilityService(f.profiles, f.slots, f.periods, f.occs, nil, zap.NewNop())
	f.svc = NewTeacherSearchService(f.profiles, f.slots, f.engine, clock.NewFixed(time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC)), nil, zap.NewNop(), SearchConfig{})
	return f
}

func mondayEveningRequest() dto.SearchTeachersRequest {
	return dto.SearchTeachersRequest{
		Days:            []dto.DayRequest{{Weekday: int(time.Monday), Segments: []dto.RequestedSegment{{Start: "17:00", End: "18:00"}}}},
		DurationMinutes: 60,
		From:            "2025-03-10",
		Filters:         dto.SearchFilters{Subject: "math"},
	}
}

func TestSearchTeachersClassifiesCandidates(t *testing.T) {
	f := newSearchFixture(t)

	resp, err := f.svc.SearchTeachers(context.Background(), mondayEveningRequest(), "Africa/Cairo")
	require.NoError(t, err)
	assert.Equal(t, "Africa/Cairo", resp.Timezone)
	assert.Equal(t, dto.SearchStats{Candidates: 5, Filtered: 1, NoAvailability: 1, Exact: 1, Flexible: 2}, resp.Stats)
	assert.Empty(t, resp.Diagnostic)

	require.Len(t, resp.ExactMatches, 1)
	exact := resp.ExactMatches[0]
	assert.Equal(t, "t-amina", exact.TeacherID)
	assert.Equal(t, 100, exact.Score)
	require.Len(t, exact.Segments, 1)
	assert.Equal(t, "2025-03-10T17:00:00+02:00", exact.Segments[0].Start)
	assert.Equal(t, "2025-03-10T18:00:00+02:00", exact.Segments[0].End)
	assert.Equal(t, "17:00-18:00", exact.Segments[0].Requested)

	require.Len(t, resp.FlexibleMatches, 2)
	assert.Equal(t, "t-basma", resp.FlexibleMatches[0].TeacherID)
	assert.Equal(t, "t-chen", resp.FlexibleMatches[1].TeacherID)
	chen := resp.FlexibleMatches[1]
	require.Len(t, chen.Segments, 2)
	assert.Equal(t, "2025-03-10T17:00:00+02:00", chen.Segments[0].End)
	assert.Equal(t, "2025-03-10T18:00:00+02:00", chen.Segments[1].Start)
	assert.Equal(t, anyTimeRequested, chen.Segments[1].Requested)
}

func TestSearchTeachersAnyTimeDay(t *testing.T) {
	f := newSearchFixture(t)
	req := dto.SearchTeachersRequest{
		Days:            []dto.DayRequest{{Weekday: int(time.Tuesday)}},
		DurationMinutes: 30,
		From:            "2025-03-10",
	}

	resp, err := f.svc.SearchTeachers(context.Background(), req, "UTC")
	require.NoError(t, err)
	require.Len(t, resp.FlexibleMatches, 4)
	for _, match := range resp.FlexibleMatches {
		require.Len(t, match.Segments, 1)
		assert.Equal(t, "2025-03-11", match.Segments[0].Date)
		assert.Equal(t, 100, match.Score)
	}
}

func TestSearchTeachersReportsPerTeacherFailure(t *testing.T) {
	f := newSearchFixture(t)
	f.svc.engine = failingEngine{inner: f.engine, failID: "t-amina"}

	resp, err := f.svc.SearchTeachers(context.Background(), mondayEveningRequest(), "Africa/Cairo")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Stats.Failed)
	assert.Empty(t, resp.ExactMatches)
	assert.Len(t, resp.FlexibleMatches, 2)
	assert.NotEmpty(t, resp.Diagnostic)
}

func TestSearchTeachersBoundsSlowTeacher(t *testing.T) {
	f := newSearchFixture(t)
	engine := stallingEngine{inner: f.engine, slowID: "t-chen"}
	svc := NewTeacherSearchService(f.profiles, f.slots, engine, clock.NewFixed(time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC)),
		nil, zap.NewNop(), SearchConfig{TeacherTimeout: 50 * time.Millisecond})

	started := time.Now()
	resp, err := svc.SearchTeachers(context.Background(), mondayEveningRequest(), "Africa/Cairo")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), time.Second)

	assert.Equal(t, 1, resp.Stats.Failed)
	assert.Equal(t, []string{"t-amina"}, matchIDs(resp.ExactMatches))
	assert.Equal(t, []string{"t-basma"}, matchIDs(resp.FlexibleMatches))
	assert.NotEmpty(t, resp.Diagnostic)
}

func TestSearchTeachersSlotFitBypassNeedsAlwaysAvailable(t *testing.T) {
	f := newSearchFixture(t)
	f.profiles.items["t-farid"] = models.TeacherProfile{
		ID: "t-farid", FullName: "Farid Aziz", Timezone: "Africa/Cairo", Status: models.StatusActive, Subjects: pq.StringArray{"math"},
	}

	resp, err := f.svc.SearchTeachers(context.Background(), mondayEveningRequest(), "Africa/Cairo")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-amina"}, matchIDs(resp.ExactMatches))
	assert.Contains(t, matchIDs(resp.FlexibleMatches), "t-farid")

	farid := f.profiles.items["t-farid"]
	farid.AlwaysAvailable = true
	f.profiles.items["t-farid"] = farid

	resp, err = f.svc.SearchTeachers(context.Background(), mondayEveningRequest(), "Africa/Cairo")
	require.NoError(t, err)
	assert.Equal(t, []string{"t-amina", "t-farid"}, matchIDs(resp.ExactMatches))
	assert.NotContains(t, matchIDs(resp.FlexibleMatches), "t-farid")
}

func matchIDs(matches []dto.TeacherMatch) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.TeacherID)
	}
	return ids
}

func TestSearchTeachersDegradesWhenCandidatesUnavailable(t *testing.T) {
	f := newSearchFixture(t)
	f.profiles.err = errors.New("connection refused")

	resp, err := f.svc.SearchTeachers(context.Background(), mondayEveningRequest(), "Africa/Cairo")
	require.NoError(t, err)
	assert.Empty(t, resp.ExactMatches)
	assert.Empty(t, resp.FlexibleMatches)
	assert.Contains(t, resp.Diagnostic, "candidate lookup failed")
}

func TestSearchTeachersValidation(t *testing.T) {
	f := newSearchFixture(t)
	ctx := context.Background()

	cases := map[string]func(*dto.SearchTeachersRequest){
		"no days":        func(r *dto.SearchTeachersRequest) { r.Days = nil },
		"duplicate day":  func(r *dto.SearchTeachersRequest) { r.Days = append(r.Days, r.Days[0]) },
		"short segment":  func(r *dto.SearchTeachersRequest) { r.Days[0].Segments[0].End = "17:30" },
		"inverted range": func(r *dto.SearchTeachersRequest) { r.Days[0].Segments[0].End = "16:00" },
		"too many weeks": func(r *dto.SearchTeachersRequest) { r.Weeks = 8 },
		"bad from":       func(r *dto.SearchTeachersRequest) { r.From = "10/03/2025" },
		"age range":      func(r *dto.SearchTeachersRequest) { r.Filters.MinAge, r.Filters.MaxAge = intPtr(40), intPtr(30) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := mondayEveningRequest()
			mutate(&req)
			_, err := f.svc.SearchTeachers(ctx, req, "Africa/Cairo")
			assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
		})
	}

	_, err := f.svc.SearchTeachers(ctx, mondayEveningRequest(), "Nowhere/Land")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestPassesFilters(t *testing.T) {
	profile := models.TeacherProfile{Gender: strPtr("Female"), Age: intPtr(34), Subjects: pq.StringArray{"Physics"}}

	assert.True(t, passesFilters(profile, dto.SearchFilters{Subject: "physics", Gender: "female", MinAge: intPtr(30), MaxAge: intPtr(40)}))
	assert.False(t, passesFilters(profile, dto.SearchFilters{Gender: "male"}))
	assert.False(t, passesFilters(profile, dto.SearchFilters{MinAge: intPtr(35)}))
	assert.False(t, passesFilters(models.TeacherProfile{}, dto.SearchFilters{MaxAge: intPtr(50)}))
}
