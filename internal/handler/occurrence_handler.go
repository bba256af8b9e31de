package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, req dto.BookOccurrenceRequest) (*models.ClassOccurrence, error)
	Reschedule(ctx context.Context, id string, req dto.RescheduleOccurrenceRequest) (*models.ClassOccurrence, error)
	Cancel(ctx context.Context, id string) (*models.ClassOccurrence, error)
}

type occurrenceGenerator interface {
	GenerateOccurrences(ctx context.Context, patternID string, horizonMonths int) ([]string, error)
}

// OccurrenceHandler books lessons and extends recurring patterns.
type OccurrenceHandler struct {
	bookings  bookingService
	generator occurrenceGenerator
}

// NewOccurrenceHandler constructs the handler.
func NewOccurrenceHandler(bookings bookingService, generator occurrenceGenerator) *OccurrenceHandler {
	return &OccurrenceHandler{bookings: bookings, generator: generator}
}

// Book godoc
// @Summary Book a single lesson
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param payload body dto.BookOccurrenceRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /occurrences [post]
func (h *OccurrenceHandler) Book(c *gin.Context) {
	var req dto.BookOccurrenceRequest
	if !bindJSON(c, &req, "invalid booking payload") {
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		switch claims.Role {
		case models.RoleStudent:
			if req.StudentID != claims.UserID {
				response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students may only book for themselves"))
				return
			}
		case models.RoleTeacher:
			if req.TeacherID != claims.UserID {
				response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teachers may only book their own lessons"))
				return
			}
		}
	}
	item, err := h.bookings.Book(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Reschedule godoc
// @Summary Move a scheduled lesson
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param id path string true "Occurrence ID"
// @Param payload body dto.RescheduleOccurrenceRequest true "New schedule"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /occurrences/{id}/reschedule [put]
func (h *OccurrenceHandler) Reschedule(c *gin.Context) {
	id := requireParam(c, "id")
	if id == "" {
		return
	}
	var req dto.RescheduleOccurrenceRequest
	if !bindJSON(c, &req, "invalid reschedule payload") {
		return
	}
	item, err := h.bookings.Reschedule(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// Cancel godoc
// @Summary Cancel a scheduled lesson
// @Tags Occurrences
// @Produce json
// @Param id path string true "Occurrence ID"
// @Success 200 {object} response.Envelope
// @Router /occurrences/{id}/cancel [post]
func (h *OccurrenceHandler) Cancel(c *gin.Context) {
	id := requireParam(c, "id")
	if id == "" {
		return
	}
	item, err := h.bookings.Cancel(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item)
}

// Generate godoc
// @Summary Materialise occurrences for a recurring pattern
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param id path string true "Pattern ID"
// @Param payload body dto.GenerateOccurrencesRequest false "Horizon override"
// @Success 200 {object} response.Envelope
// @Router /patterns/{id}/generate [post]
func (h *OccurrenceHandler) Generate(c *gin.Context) {
	patternID := requireParam(c, "id")
	if patternID == "" {
		return
	}
	var req dto.GenerateOccurrencesRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	if req.HorizonMonths < 0 || req.HorizonMonths > 24 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "horizonMonths must be between 1 and 24"))
		return
	}
	created, err := h.generator.GenerateOccurrences(c.Request.Context(), patternID, req.HorizonMonths)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.GenerateOccurrencesResponse{PatternID: patternID, Created: created, Count: len(created)})
}
