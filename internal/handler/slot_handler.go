package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type slotService interface {
	List(ctx context.Context, teacherID string) ([]models.WeeklyAvailabilitySlot, error)
	Create(ctx context.Context, teacherID string, req dto.CreateSlotRequest) (*models.WeeklyAvailabilitySlot, error)
	Update(ctx context.Context, teacherID, slotID string, req dto.UpdateSlotRequest) (*models.WeeklyAvailabilitySlot, error)
	Deactivate(ctx context.Context, teacherID, slotID string) error
}

type unavailabilityService interface {
	List(ctx context.Context, teacherID string) ([]models.UnavailabilityPeriod, error)
	Create(ctx context.Context, teacherID string, req dto.CreateUnavailabilityRequest, approved bool) (*models.UnavailabilityPeriod, error)
	Approve(ctx context.Context, id string) (*models.UnavailabilityPeriod, error)
	Reject(ctx context.Context, id string) (*models.UnavailabilityPeriod, error)
	Deactivate(ctx context.Context, teacherID, id string) error
}

// SlotHandler manages weekly slots and unavailability periods under /teachers/:id.
type SlotHandler struct {
	slots   slotService
	periods unavailabilityService
}

// NewSlotHandler constructs the handler.
func NewSlotHandler(slots slotService, periods unavailabilityService) *SlotHandler {
	return &SlotHandler{slots: slots, periods: periods}
}

// ListSlots godoc
// @Summary List weekly availability slots
// @Tags Slots
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/slots [get]
func (h *SlotHandler) ListSlots(c *gin.Context) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	items, err := h.slots.List(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items)
}

// CreateSlot godoc
// @Summary Add a weekly availability slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body dto.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /teachers/{id}/slots [post]
func (h *SlotHandler) CreateSlot(c *gin.Context) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	var req dto.CreateSlotRequest
	if !bindJSON(c, &req, "invalid slot payload") {
		return
	}
	slot, err := h.slots.Create(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// UpdateSlot godoc
// @Summary Update a weekly availability slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param slotId path string true "Slot ID"
// @Param payload body dto.UpdateSlotRequest true "Slot changes"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/slots/{slotId} [put]
func (h *SlotHandler) UpdateSlot(c *gin.Context) {
	teacherID := requireParam(c, "id")
	slotID := requireParam(c, "slotId")
	if teacherID == "" || slotID == "" {
		return
	}
	var req dto.UpdateSlotRequest
	if !bindJSON(c, &req, "invalid slot payload") {
		return
	}
	slot, err := h.slots.Update(c.Request.Context(), teacherID, slotID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot)
}

// DeleteSlot godoc
// @Summary Deactivate a weekly availability slot
// @Tags Slots
// @Param id path string true "Teacher ID"
// @Param slotId path string true "Slot ID"
// @Success 204
// @Router /teachers/{id}/slots/{slotId} [delete]
func (h *SlotHandler) DeleteSlot(c *gin.Context) {
	teacherID := requireParam(c, "id")
	slotID := requireParam(c, "slotId")
	if teacherID == "" || slotID == "" {
		return
	}
	if err := h.slots.Deactivate(c.Request.Context(), teacherID, slotID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListUnavailability godoc
// @Summary List unavailability periods
// @Tags Unavailability
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/unavailability [get]
func (h *SlotHandler) ListUnavailability(c *gin.Context) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	items, err := h.periods.List(c.Request.Context(), teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items)
}

// CreateUnavailability godoc
// @Summary File an unavailability period (admins file pre-approved periods)
// @Tags Unavailability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body dto.CreateUnavailabilityRequest true "Period payload"
// @Success 201 {object} response.Envelope
// @Router /teachers/{id}/unavailability [post]
func (h *SlotHandler) CreateUnavailability(c *gin.Context) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	var req dto.CreateUnavailabilityRequest
	if !bindJSON(c, &req, "invalid unavailability payload") {
		return
	}
	period, err := h.periods.Create(c.Request.Context(), teacherID, req, isAdmin(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// ApproveUnavailability godoc
// @Summary Approve a pending unavailability period
// @Tags Unavailability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param periodId path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/unavailability/{periodId}/approve [post]
func (h *SlotHandler) ApproveUnavailability(c *gin.Context) {
	h.review(c, h.periods.Approve)
}

// RejectUnavailability godoc
// @Summary Reject a pending unavailability period
// @Tags Unavailability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param periodId path string true "Period ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/unavailability/{periodId}/reject [post]
func (h *SlotHandler) RejectUnavailability(c *gin.Context) {
	h.review(c, h.periods.Reject)
}

// DeleteUnavailability godoc
// @Summary Withdraw an unavailability period
// @Tags Unavailability
// @Param id path string true "Teacher ID"
// @Param periodId path string true "Period ID"
// @Success 204
// @Router /teachers/{id}/unavailability/{periodId} [delete]
func (h *SlotHandler) DeleteUnavailability(c *gin.Context) {
	teacherID := requireParam(c, "id")
	periodID := requireParam(c, "periodId")
	if teacherID == "" || periodID == "" {
		return
	}
	if err := h.periods.Deactivate(c.Request.Context(), teacherID, periodID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *SlotHandler) review(c *gin.Context, decide func(ctx context.Context, id string) (*models.UnavailabilityPeriod, error)) {
	periodID := requireParam(c, "periodId")
	if periodID == "" {
		return
	}
	period, err := decide(c.Request.Context(), periodID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period)
}
