package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

type weeklySlotStore interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error)
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error)
	FindByID(ctx context.Context, id string) (*models.WeeklyAvailabilitySlot, error)
	Create(ctx context.Context, slot *models.WeeklyAvailabilitySlot) error
	Update(ctx context.Context, slot *models.WeeklyAvailabilitySlot) error
	UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error
}

// SlotService manages teachers' weekly availability windows.
type SlotService struct {
	slots     weeklySlotStore
	profiles  teacherProfileReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSlotService constructs the slot service.
func NewSlotService(slots weeklySlotStore, profiles teacherProfileReader, validate *validator.Validate, logger *zap.Logger) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{slots: slots, profiles: profiles, validator: validate, logger: logger}
}

// List returns every slot of the teacher, active or not.
func (s *SlotService) List(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error) {
	if err := s.ensureTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to list availability slots")
	}
	return slots, nil
}

// Create adds a weekly slot. Overlapping an active slot on the same day is a conflict.
func (s *SlotService) Create(ctx context.Context, teacherID string, req dto.CreateSlotRequest) (*models.WeeklyAvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if err := s.ensureTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	slot := &models.WeeklyAvailabilitySlot{
		TeacherID:     teacherID,
		DayOfWeek:     req.DayOfWeek,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Timezone:      req.Timezone,
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
		Status:        models.StatusActive,
	}
	if err := validateSlot(*slot); err != nil {
		return nil, err
	}
	if err := s.ensureNoOverlap(ctx, *slot); err != nil {
		return nil, err
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, appErrors.Upstream(err, "failed to create availability slot")
	}
	s.logger.Info("availability slot created", zap.String("teacher_id", teacherID), zap.String("slot_id", slot.ID))
	return slot, nil
}

// Update patches a slot owned by the teacher.
func (s *SlotService) Update(ctx context.Context, teacherID, slotID string, req dto.UpdateSlotRequest) (*models.WeeklyAvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	slot, err := s.owned(ctx, teacherID, slotID)
	if err != nil {
		return nil, err
	}
	if req.DayOfWeek != nil {
		slot.DayOfWeek = *req.DayOfWeek
	}
	if req.StartTime != nil {
		slot.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		slot.EndTime = *req.EndTime
	}
	if req.Timezone != nil {
		slot.Timezone = *req.Timezone
	}
	if req.EffectiveFrom != nil {
		slot.EffectiveFrom = req.EffectiveFrom
	}
	if req.EffectiveTo != nil {
		slot.EffectiveTo = req.EffectiveTo
	}
	if err := validateSlot(*slot); err != nil {
		return nil, err
	}
	if slot.IsActive() {
		if err := s.ensureNoOverlap(ctx, *slot); err != nil {
			return nil, err
		}
	}
	if err := s.slots.Update(ctx, slot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability slot not found")
		}
		return nil, appErrors.Upstream(err, "failed to update availability slot")
	}
	return slot, nil
}

// Deactivate removes the slot from availability checks without deleting it.
func (s *SlotService) Deactivate(ctx context.Context, teacherID, slotID string) error {
	if _, err := s.owned(ctx, teacherID, slotID); err != nil {
		return err
	}
	if err := s.slots.UpdateStatus(ctx, slotID, models.StatusInactive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "availability slot not found")
		}
		return appErrors.Upstream(err, "failed to deactivate availability slot")
	}
	return nil
}

func (s *SlotService) owned(ctx context.Context, teacherID, slotID string) (*models.WeeklyAvailabilitySlot, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability slot not found")
		}
		return nil, appErrors.Upstream(err, "failed to load availability slot")
	}
	if slot.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "availability slot not found")
	}
	return slot, nil
}

func (s *SlotService) ensureTeacher(ctx context.Context, teacherID string) error {
	if teacherID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	if s.profiles == nil {
		return nil
	}
	if _, err := s.profiles.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Upstream(err, "failed to load teacher profile")
	}
	return nil
}

func (s *SlotService) ensureNoOverlap(ctx context.Context, slot models.WeeklyAvailabilitySlot) error {
	existing, err := s.slots.ListActiveByTeacher(ctx, slot.TeacherID)
	if err != nil {
		return appErrors.Upstream(err, "failed to load availability slots")
	}
	start, end, _ := slot.Minutes()
	for _, other := range existing {
		if other.ID == slot.ID || !other.IsActive() || other.DayOfWeek != slot.DayOfWeek {
			continue
		}
		otherStart, otherEnd, err := other.Minutes()
		if err != nil {
			continue
		}
		if start < otherEnd && end > otherStart && effectiveRangesMeet(slot, other) {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("slot overlaps %s-%s (%s)", other.StartTime, other.EndTime, other.ID))
		}
	}
	return nil
}

func validateSlot(slot models.WeeklyAvailabilitySlot) error {
	if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
		return appErrors.Clone(appErrors.ErrValidation, "dayOfWeek must be between 0 and 6")
	}
	start, end, err := slot.Minutes()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "times must be formatted as HH:MM")
	}
	if start >= end {
		return appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	if _, err := time.LoadLocation(slot.Timezone); err != nil || slot.Timezone == "" {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown timezone %q", slot.Timezone))
	}
	if slot.EffectiveFrom != nil && slot.EffectiveTo != nil && slot.EffectiveTo.Before(*slot.EffectiveFrom) {
		return appErrors.Clone(appErrors.ErrValidation, "effectiveTo must not be before effectiveFrom")
	}
	return nil
}

// effectiveRangesMeet reports whether two slots can apply on a common date.
func effectiveRangesMeet(a, b models.WeeklyAvailabilitySlot) bool {
	if a.EffectiveTo != nil && b.EffectiveFrom != nil && a.EffectiveTo.Before(*b.EffectiveFrom) {
		return false
	}
	if b.EffectiveTo != nil && a.EffectiveFrom != nil && b.EffectiveTo.Before(*a.EffectiveFrom) {
		return false
	}
	return true
}
