package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

type weeklySlotReader interface {
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error)
}

type blockingPeriodReader interface {
	ListBlockingInRange(ctx context.Context, teacherID string, start, end time.Time) ([]models.UnavailabilityPeriod, error)
}

type busyOccurrenceReader interface {
	ListBusyInRange(ctx context.Context, teacherID string, start, end time.Time, excludeID string) ([]models.ClassOccurrence, error)
}

type teacherProfileReader interface {
	FindByID(ctx context.Context, id string) (*models.TeacherProfile, error)
}

type availabilityObserver interface {
	ObserveAvailabilityCheck(result string)
}

// AvailabilityService decides bookability and computes free time for teachers.
// Every call reads current persisted state; nothing is cached between calls.
type AvailabilityService struct {
	profiles    teacherProfileReader
	slots       weeklySlotReader
	periods     blockingPeriodReader
	occurrences busyOccurrenceReader
	metrics     availabilityObserver
	logger      *zap.Logger
}

// NewAvailabilityService wires the engine dependencies.
func NewAvailabilityService(
	profiles teacherProfileReader,
	slots weeklySlotReader,
	periods blockingPeriodReader,
	occurrences busyOccurrenceReader,
	metrics availabilityObserver,
	logger *zap.Logger,
) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		profiles:    profiles,
		slots:       slots,
		periods:     periods,
		occurrences: occurrences,
		metrics:     metrics,
		logger:      logger,
	}
}

// CheckAvailability reports whether teacherID can be booked for [start, end).
// A negative outcome is returned as data; only lookup failures are errors.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, teacherID string, start, end time.Time, excludeID string) (*models.AvailabilityResult, error) {
	start, end = interval.Normalize(start), interval.Normalize(end)
	if err := validateWindow(teacherID, start, end); err != nil {
		return nil, err
	}
	if _, err := s.loadProfile(ctx, teacherID); err != nil {
		return nil, err
	}

	slots, err := s.slots.ListActiveByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to load weekly slots")
	}
	if !s.windowFitsAnySlot(slots, start, end) {
		return s.observe(&models.AvailabilityResult{
			Available:    false,
			ConflictType: models.ConflictNoWeeklySlot,
			Reason:       "requested window is outside the teacher's weekly availability",
		}), nil
	}

	periods, err := s.periods.ListBlockingInRange(ctx, teacherID, start, end)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to load unavailability periods")
	}
	for _, period := range periods {
		if !period.Blocks() || !interval.Overlaps(period.StartAt, period.EndAt, start, end) {
			continue
		}
		reason := period.Reason
		return s.observe(&models.AvailabilityResult{
			Available:    false,
			ConflictType: models.ConflictUnavailablePeriod,
			Reason:       "teacher is unavailable during the requested window",
			Conflict: &models.ConflictDetail{
				ID:     period.ID,
				Start:  period.StartAt.UTC(),
				End:    period.EndAt.UTC(),
				Reason: &reason,
			},
		}), nil
	}

	occurrences, err := s.occurrences.ListBusyInRange(ctx, teacherID, start, end, excludeID)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to load booked classes")
	}
	for _, occ := range occurrences {
		if occ.ID == excludeID || !occ.Status.IsBusy() || !interval.Overlaps(occ.ScheduledAt, occ.EndsAt(), start, end) {
			continue
		}
		return s.observe(&models.AvailabilityResult{
			Available:    false,
			ConflictType: models.ConflictExistingClass,
			Reason:       "teacher already has a class during the requested window",
			Conflict: &models.ConflictDetail{
				ID:          occ.ID,
				Start:       occ.ScheduledAt.UTC(),
				End:         occ.EndsAt().UTC(),
				Counterpart: occ.StudentName,
				Subject:     occ.Subject,
			},
		}), nil
	}

	return s.observe(&models.AvailabilityResult{Available: true, Reason: "available"}), nil
}

// FreeSegments returns the ordered free UTC ranges of the teacher inside [windowStart, windowEnd).
func (s *AvailabilityService) FreeSegments(ctx context.Context, teacherID string, windowStart, windowEnd time.Time) ([]interval.Interval, error) {
	windowStart, windowEnd = interval.Normalize(windowStart), interval.Normalize(windowEnd)
	if err := validateWindow(teacherID, windowStart, windowEnd); err != nil {
		return nil, err
	}
	if _, err := s.loadProfile(ctx, teacherID); err != nil {
		return nil, err
	}
	return s.freeSegments(ctx, teacherID, windowStart, windowEnd)
}

// FreeSummary renders free segments for presentation in displayTZ, defaulting to the teacher's timezone.
func (s *AvailabilityService) FreeSummary(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*dto.FreeSummary, error) {
	from, to = interval.Normalize(from), interval.Normalize(to)
	if err := validateWindow(teacherID, from, to); err != nil {
		return nil, err
	}
	profile, err := s.loadProfile(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if displayTZ == "" {
		displayTZ = profile.Timezone
	}
	loc, err := loadDisplayLocation(displayTZ)
	if err != nil {
		return nil, err
	}

	free, err := s.freeSegments(ctx, teacherID, from, to)
	if err != nil {
		return nil, err
	}
	summary := &dto.FreeSummary{
		TeacherID:   profile.ID,
		TeacherName: profile.FullName,
		Timezone:    loc.String(),
		From:        from,
		To:          to,
		Segments:    toSegments(free, loc),
	}
	for _, seg := range summary.Segments {
		summary.TotalMins += seg.DurationMins
	}
	return summary, nil
}

func (s *AvailabilityService) freeSegments(ctx context.Context, teacherID string, windowStart, windowEnd time.Time) ([]interval.Interval, error) {
	busy, err := s.busyIntervals(ctx, teacherID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	return interval.Subtract(interval.Interval{Start: windowStart, End: windowEnd}, busy), nil
}

func (s *AvailabilityService) busyIntervals(ctx context.Context, teacherID string, windowStart, windowEnd time.Time) ([]interval.Interval, error) {
	periods, err := s.periods.ListBlockingInRange(ctx, teacherID, windowStart, windowEnd)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to load unavailability periods")
	}
	occurrences, err := s.occurrences.ListBusyInRange(ctx, teacherID, windowStart, windowEnd, "")
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to load booked classes")
	}

	busy := make([]interval.Interval, 0, len(periods)+len(occurrences))
	for _, period := range periods {
		if !period.Blocks() {
			continue
		}
		busy = append(busy, interval.New(period.StartAt, period.EndAt, interval.TypeUnavailable, map[string]any{
			"id":     period.ID,
			"reason": period.Reason,
		}))
	}
	for _, occ := range occurrences {
		if !occ.Status.IsBusy() {
			continue
		}
		meta := map[string]any{"id": occ.ID}
		if occ.Subject != nil {
			meta["subject"] = *occ.Subject
		}
		busy = append(busy, interval.New(occ.ScheduledAt, occ.EndsAt(), interval.TypeClass, meta))
	}
	return busy, nil
}

// windowFitsAnySlot applies the weekly slot rule. A teacher without active slots is always eligible.
func (s *AvailabilityService) windowFitsAnySlot(slots []models.WeeklyAvailabilitySlot, start, end time.Time) bool {
	active := 0
	for _, slot := range slots {
		if !slot.IsActive() {
			continue
		}
		active++
		fits, err := windowFitsSlot(slot, start, end)
		if err != nil {
			s.logger.Warn("skipping malformed availability slot", zap.String("slot_id", slot.ID), zap.Error(err))
			continue
		}
		if fits {
			return true
		}
	}
	return active == 0
}

// windowFitsSlot reports whether [start, end) lies inside slot on a single local calendar day.
func windowFitsSlot(slot models.WeeklyAvailabilitySlot, start, end time.Time) (bool, error) {
	loc, err := time.LoadLocation(slot.Timezone)
	if err != nil {
		return false, fmt.Errorf("load slot timezone %q: %w", slot.Timezone, err)
	}
	slotStart, slotEnd, err := slot.Minutes()
	if err != nil {
		return false, err
	}
	localStart, localEnd := start.In(loc), end.In(loc)
	ys, ms, ds := localStart.Date()
	ye, me, de := localEnd.Date()
	if ys != ye || ms != me || ds != de {
		return false, nil
	}
	if int(localStart.Weekday()) != slot.DayOfWeek || !slot.EffectiveOn(ys, ms, ds) {
		return false, nil
	}
	reqStart := secondsOfDay(localStart)
	reqEnd := secondsOfDay(localEnd)
	return reqStart >= slotStart*60 && reqEnd <= slotEnd*60, nil
}

func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

func (s *AvailabilityService) loadProfile(ctx context.Context, teacherID string) (*models.TeacherProfile, error) {
	profile, err := s.profiles.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Upstream(err, "failed to load teacher profile")
	}
	if !profile.IsActive() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return profile, nil
}

func (s *AvailabilityService) observe(result *models.AvailabilityResult) *models.AvailabilityResult {
	if s.metrics != nil {
		label := "available"
		if !result.Available {
			label = string(result.ConflictType)
		}
		s.metrics.ObserveAvailabilityCheck(label)
	}
	return result
}

func validateWindow(teacherID string, start, end time.Time) error {
	if teacherID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	if start.IsZero() || end.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "start and end are required")
	}
	if end.UnixMilli() <= start.UnixMilli() {
		return appErrors.Clone(appErrors.ErrValidation, "end must be after start")
	}
	return nil
}

func loadDisplayLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("unknown timezone %q", tz))
	}
	return loc, nil
}

func toSegments(free []interval.Interval, loc *time.Location) []dto.Segment {
	segments := make([]dto.Segment, 0, len(free))
	for _, iv := range free {
		segments = append(segments, dto.Segment{
			Start:        iv.Start,
			End:          iv.End,
			LocalStart:   iv.Start.In(loc).Format(time.RFC3339),
			LocalEnd:     iv.End.In(loc).Format(time.RFC3339),
			DurationMins: int(iv.Duration() / time.Minute),
		})
	}
	return segments
}
