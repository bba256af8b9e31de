package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

type unavailabilityStore interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.UnavailabilityPeriod, error)
	FindByID(ctx context.Context, id string) (*models.UnavailabilityPeriod, error)
	Create(ctx context.Context, period *models.UnavailabilityPeriod) error
	UpdateApproval(ctx context.Context, id string, approval models.ApprovalStatus) error
	UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error
}

// UnavailabilityService handles teacher leave requests and their review.
// Only approved, active periods block bookings.
type UnavailabilityService struct {
	periods   unavailabilityStore
	profiles  teacherProfileReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUnavailabilityService constructs the service.
func NewUnavailabilityService(periods unavailabilityStore, profiles teacherProfileReader, validate *validator.Validate, logger *zap.Logger) *UnavailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnavailabilityService{periods: periods, profiles: profiles, validator: validate, logger: logger}
}

// List returns the teacher's periods in every approval state.
func (s *UnavailabilityService) List(ctx context.Context, teacherID string) ([]models.UnavailabilityPeriod, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	items, err := s.periods.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to list unavailability periods")
	}
	return items, nil
}

// Create files a new period. Admin-filed periods are approved immediately; others wait for review.
func (s *UnavailabilityService) Create(ctx context.Context, teacherID string, req dto.CreateUnavailabilityRequest, approved bool) (*models.UnavailabilityPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unavailability payload")
	}
	start, end := interval.Normalize(req.StartAt), interval.Normalize(req.EndAt)
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endAt must be after startAt")
	}
	if s.profiles != nil {
		if _, err := s.profiles.FindByID(ctx, teacherID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return nil, appErrors.Upstream(err, "failed to load teacher profile")
		}
	}

	period := &models.UnavailabilityPeriod{
		TeacherID: teacherID,
		StartAt:   start,
		EndAt:     end,
		Reason:    strings.TrimSpace(req.Reason),
		Approval:  models.ApprovalPending,
		Status:    models.StatusActive,
	}
	if approved {
		period.Approval = models.ApprovalApproved
	}
	if err := s.periods.Create(ctx, period); err != nil {
		return nil, appErrors.Upstream(err, "failed to create unavailability period")
	}
	return period, nil
}

// Approve makes a pending period block bookings.
func (s *UnavailabilityService) Approve(ctx context.Context, id string) (*models.UnavailabilityPeriod, error) {
	return s.review(ctx, id, models.ApprovalApproved)
}

// Reject declines a pending period.
func (s *UnavailabilityService) Reject(ctx context.Context, id string) (*models.UnavailabilityPeriod, error) {
	return s.review(ctx, id, models.ApprovalRejected)
}

// Deactivate withdraws a period owned by the teacher.
func (s *UnavailabilityService) Deactivate(ctx context.Context, teacherID, id string) error {
	period, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if period.TeacherID != teacherID {
		return appErrors.Clone(appErrors.ErrNotFound, "unavailability period not found")
	}
	if err := s.periods.UpdateStatus(ctx, id, models.StatusInactive); err != nil {
		return appErrors.Upstream(err, "failed to deactivate unavailability period")
	}
	return nil
}

func (s *UnavailabilityService) review(ctx context.Context, id string, decision models.ApprovalStatus) (*models.UnavailabilityPeriod, error) {
	period, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.Approval != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "unavailability period already reviewed")
	}
	if period.Status != models.StatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "unavailability period is inactive")
	}
	if err := s.periods.UpdateApproval(ctx, id, decision); err != nil {
		return nil, appErrors.Upstream(err, "failed to review unavailability period")
	}
	period.Approval = decision
	s.logger.Info("unavailability reviewed", zap.String("period_id", id), zap.String("decision", string(decision)))
	return period, nil
}

func (s *UnavailabilityService) load(ctx context.Context, id string) (*models.UnavailabilityPeriod, error) {
	period, err := s.periods.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unavailability period not found")
		}
		return nil, appErrors.Upstream(err, "failed to load unavailability period")
	}
	return period, nil
}
