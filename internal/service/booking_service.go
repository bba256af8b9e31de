package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

type bookingOccurrenceStore interface {
	FindByID(ctx context.Context, id string) (*models.ClassOccurrence, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) error
	UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) error
	UpdateStatus(ctx context.Context, id string, status models.OccurrenceStatus) error
}

type availabilityChecker interface {
	CheckAvailability(ctx context.Context, teacherID string, start, end time.Time, excludeID string) (*models.AvailabilityResult, error)
}

// BookingService creates and moves single lessons, re-validating every change against the engine.
type BookingService struct {
	occurrences bookingOccurrenceStore
	engine      availabilityChecker
	notifier    participantNotifier
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewBookingService constructs the booking service. notifier may be nil.
func NewBookingService(occurrences bookingOccurrenceStore, engine availabilityChecker, notifier participantNotifier, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		occurrences: occurrences,
		engine:      engine,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
	}
}

// Book inserts a scheduled occurrence when the teacher is available for it.
func (s *BookingService) Book(ctx context.Context, req dto.BookOccurrenceRequest) (*models.ClassOccurrence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	loc, err := time.LoadLocation(req.AnchorTimezone)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("unknown timezone %q", req.AnchorTimezone))
	}
	start := interval.Normalize(req.ScheduledAt)
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	if err := s.ensureAvailable(ctx, req.TeacherID, start, end, ""); err != nil {
		return nil, err
	}

	item := &models.ClassOccurrence{
		TeacherID:           req.TeacherID,
		StudentID:           req.StudentID,
		Subject:             req.Subject,
		ScheduledAt:         start,
		DurationMinutes:     req.DurationMinutes,
		Anchor:              models.AnchorDesignation(req.Anchor),
		AnchorTimezone:      loc.String(),
		AnchorOffsetMinutes: intRef(offsetSeconds(start, loc) / 60),
		Status:              models.OccurrenceScheduled,
	}
	if err := s.occurrences.Create(ctx, nil, item); err != nil {
		return nil, appErrors.Upstream(err, "failed to book occurrence")
	}
	s.logger.Info("occurrence booked", zap.String("occurrence_id", item.ID), zap.String("teacher_id", item.TeacherID))
	s.notify(ctx, *item, "Lesson booked")
	return item, nil
}

// Reschedule moves a scheduled occurrence, ignoring its own current slot during the check.
func (s *BookingService) Reschedule(ctx context.Context, id string, req dto.RescheduleOccurrenceRequest) (*models.ClassOccurrence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.OccurrenceScheduled {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("occurrence is %s", item.Status))
	}
	duration := item.DurationMinutes
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	start := interval.Normalize(req.ScheduledAt)
	end := start.Add(time.Duration(duration) * time.Minute)
	if err := s.ensureAvailable(ctx, item.TeacherID, start, end, item.ID); err != nil {
		return nil, err
	}

	item.ScheduledAt = start
	item.DurationMinutes = duration
	if loc, err := time.LoadLocation(item.AnchorTimezone); err == nil && item.AnchorTimezone != "" {
		item.AnchorOffsetMinutes = intRef(offsetSeconds(start, loc) / 60)
	}
	if err := s.occurrences.UpdateSchedule(ctx, nil, item); err != nil {
		return nil, appErrors.Upstream(err, "failed to reschedule occurrence")
	}
	s.notify(ctx, *item, "Lesson rescheduled")
	return item, nil
}

// Cancel marks a scheduled occurrence cancelled, freeing the teacher's time.
func (s *BookingService) Cancel(ctx context.Context, id string) (*models.ClassOccurrence, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.OccurrenceScheduled {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("occurrence is %s", item.Status))
	}
	if err := s.occurrences.UpdateStatus(ctx, id, models.OccurrenceCancelled); err != nil {
		return nil, appErrors.Upstream(err, "failed to cancel occurrence")
	}
	item.Status = models.OccurrenceCancelled
	s.notify(ctx, *item, "Lesson cancelled")
	return item, nil
}

func (s *BookingService) ensureAvailable(ctx context.Context, teacherID string, start, end time.Time, excludeID string) error {
	result, err := s.engine.CheckAvailability(ctx, teacherID, start, end, excludeID)
	if err != nil {
		return err
	}
	if !result.Available {
		return appErrors.Wrap(&models.AvailabilityConflictError{Result: *result},
			appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "teacher is not available")
	}
	return nil
}

func (s *BookingService) load(ctx context.Context, id string) (*models.ClassOccurrence, error) {
	item, err := s.occurrences.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "occurrence not found")
		}
		return nil, appErrors.Upstream(err, "failed to load occurrence")
	}
	return item, nil
}

func (s *BookingService) notify(ctx context.Context, item models.ClassOccurrence, title string) {
	if s.notifier == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"occurrence_id": item.ID, "scheduled_at": item.ScheduledAt, "status": item.Status})
	body := fmt.Sprintf("%s for %s UTC (%d minutes).", title, item.ScheduledAt.UTC().Format("Mon 2 Jan 2006 15:04"), item.DurationMinutes)
	for _, recipient := range []string{item.TeacherID, item.StudentID} {
		s.notifier.Notify(ctx, models.Notification{
			RecipientID: recipient,
			Title:       title,
			Body:        body,
			Metadata:    types.JSONText(meta),
		})
	}
}
