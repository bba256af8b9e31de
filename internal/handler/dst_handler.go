package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type dstService interface {
	DetectTransitions(timezone string, year int) ([]models.DSTTransition, error)
	ReanchorForTransition(ctx context.Context, timezone string, transition models.DSTTransition) (*dto.ReanchorReport, error)
}

type taskRunner interface {
	RunTask(ctx context.Context, name string) (*dto.SweepReport, error)
	Entries() []scheduler.EntryInfo
}

// DSTHandler exposes transition detection, manual re-anchoring and sweep triggers.
type DSTHandler struct {
	dst   dstService
	tasks taskRunner
}

// NewDSTHandler constructs the handler. tasks may be nil when the scheduler is disabled.
func NewDSTHandler(dst dstService, tasks taskRunner) *DSTHandler {
	return &DSTHandler{dst: dst, tasks: tasks}
}

// Transitions godoc
// @Summary List offset transitions of a timezone in a year
// @Tags DST
// @Produce json
// @Param tz query string true "IANA timezone"
// @Param year query int true "Year"
// @Success 200 {object} response.Envelope
// @Router /dst/transitions [get]
func (h *DSTHandler) Transitions(c *gin.Context) {
	var query dto.TransitionQuery
	if !bindQuery(c, &query, "invalid transition query") {
		return
	}
	items, err := h.dst.DetectTransitions(query.Timezone, query.Year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items)
}

// Reanchor godoc
// @Summary Re-anchor stored lessons for one transition
// @Tags DST
// @Accept json
// @Produce json
// @Param payload body dto.ReanchorRequest true "Transition"
// @Success 200 {object} response.Envelope
// @Router /dst/reanchor [post]
func (h *DSTHandler) Reanchor(c *gin.Context) {
	var req dto.ReanchorRequest
	if !bindJSON(c, &req, "invalid reanchor payload") {
		return
	}
	transition := models.DSTTransition{
		Timezone:            req.Timezone,
		Instant:             req.Instant.UTC(),
		Type:                models.TransitionType(req.Type),
		OffsetBeforeMinutes: req.OffsetBeforeMinutes,
		OffsetAfterMinutes:  req.OffsetAfterMinutes,
	}
	report, err := h.dst.ReanchorForTransition(c.Request.Context(), req.Timezone, transition)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Tasks godoc
// @Summary List scheduled sweeps
// @Tags DST
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /tasks [get]
func (h *DSTHandler) Tasks(c *gin.Context) {
	if h.tasks == nil {
		response.JSON(c, http.StatusOK, []scheduler.EntryInfo{})
		return
	}
	response.JSON(c, http.StatusOK, h.tasks.Entries())
}

// RunTask godoc
// @Summary Run a named sweep immediately
// @Tags DST
// @Produce json
// @Param name path string true "generationSweep, dailyDSTCheck or hourlyDSTCheck"
// @Success 200 {object} response.Envelope
// @Router /tasks/{name}/run [post]
func (h *DSTHandler) RunTask(c *gin.Context) {
	name := requireParam(c, "name")
	if name == "" {
		return
	}
	if h.tasks == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUpstreamUnavailable, "scheduler is disabled"))
		return
	}
	report, err := h.tasks.RunTask(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, err.Error()))
	case errors.Is(err, scheduler.ErrTaskRunning):
		response.Error(c, appErrors.Clone(appErrors.ErrConflict, err.Error()))
	case err != nil && report == nil:
		response.Error(c, err)
	default:
		meta := map[string]interface{}{}
		if err != nil {
			meta["error"] = err.Error()
		}
		response.JSON(c, http.StatusOK, report, meta)
	}
}
