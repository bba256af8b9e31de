package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type availabilityService interface {
	CheckAvailability(ctx context.Context, teacherID string, start, end time.Time, excludeID string) (*models.AvailabilityResult, error)
	FreeSegments(ctx context.Context, teacherID string, windowStart, windowEnd time.Time) ([]interval.Interval, error)
	FreeSummary(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*dto.FreeSummary, error)
}

type exportService interface {
	FreeSummaryCSV(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*service.ExportResult, error)
	FreeSummaryPDF(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*service.ExportResult, error)
	CalendarFeed(ctx context.Context, teacherID string, from, to time.Time) (*service.ExportResult, error)
}

// AvailabilityHandler exposes the availability engine and its exports.
type AvailabilityHandler struct {
	engine  availabilityService
	exports exportService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(engine availabilityService, exports exportService) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, exports: exports}
}

// Check godoc
// @Summary Check whether a teacher can be booked for a window
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param start query string true "Window start (RFC3339)"
// @Param end query string true "Window end (RFC3339)"
// @Param excludeId query string false "Occurrence to ignore"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [get]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	var query dto.AvailabilityQuery
	if !bindQuery(c, &query, "invalid availability query") {
		return
	}
	result, err := h.engine.CheckAvailability(c.Request.Context(), teacherID, query.Start, query.End, query.ExcludeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// FreeSegments godoc
// @Summary List free segments inside a window
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param start query string true "Window start (RFC3339)"
// @Param end query string true "Window end (RFC3339)"
// @Param tz query string false "Display timezone"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/free-segments [get]
func (h *AvailabilityHandler) FreeSegments(c *gin.Context) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	var query dto.FreeSegmentsQuery
	if !bindQuery(c, &query, "invalid free segments query") {
		return
	}
	loc := time.UTC
	if query.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(query.Timezone); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unknown timezone"))
			return
		}
	}
	free, err := h.engine.FreeSegments(c.Request.Context(), teacherID, query.Start, query.End)
	if err != nil {
		response.Error(c, err)
		return
	}
	segments := make([]dto.Segment, 0, len(free))
	total := 0
	for _, iv := range free {
		minutes := int(iv.Duration() / time.Minute)
		total += minutes
		segments = append(segments, dto.Segment{
			Start:        iv.Start,
			End:          iv.End,
			LocalStart:   iv.Start.In(loc).Format(time.RFC3339),
			LocalEnd:     iv.End.In(loc).Format(time.RFC3339),
			DurationMins: minutes,
		})
	}
	response.JSON(c, http.StatusOK, segments, map[string]interface{}{
		"timezone":     loc.String(),
		"totalMinutes": total,
	})
}

// FreeSummary godoc
// @Summary Shareable free-time summary
// @Tags Availability
// @Produce json
// @Param id path string true "Teacher ID"
// @Param start query string true "Window start (RFC3339)"
// @Param end query string true "Window end (RFC3339)"
// @Param tz query string false "Display timezone, defaults to the teacher's"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/free-summary [get]
func (h *AvailabilityHandler) FreeSummary(c *gin.Context) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	var query dto.FreeSegmentsQuery
	if !bindQuery(c, &query, "invalid free summary query") {
		return
	}
	summary, err := h.engine.FreeSummary(c.Request.Context(), teacherID, query.Start, query.End, query.Timezone)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// FreeSummaryCSV godoc
// @Summary Download the free-time summary as CSV
// @Tags Availability
// @Produce text/csv
// @Param id path string true "Teacher ID"
// @Param start query string true "Window start (RFC3339)"
// @Param end query string true "Window end (RFC3339)"
// @Param tz query string false "Display timezone"
// @Success 200 {file} file
// @Router /teachers/{id}/free-summary.csv [get]
func (h *AvailabilityHandler) FreeSummaryCSV(c *gin.Context) {
	h.freeSummaryFile(c, h.exports.FreeSummaryCSV)
}

// FreeSummaryPDF godoc
// @Summary Download the free-time summary as PDF
// @Tags Availability
// @Produce application/pdf
// @Param id path string true "Teacher ID"
// @Param start query string true "Window start (RFC3339)"
// @Param end query string true "Window end (RFC3339)"
// @Param tz query string false "Display timezone"
// @Success 200 {file} file
// @Router /teachers/{id}/free-summary.pdf [get]
func (h *AvailabilityHandler) FreeSummaryPDF(c *gin.Context) {
	h.freeSummaryFile(c, h.exports.FreeSummaryPDF)
}

// Calendar godoc
// @Summary Lessons as an iCalendar feed
// @Tags Availability
// @Produce text/calendar
// @Param id path string true "Teacher ID"
// @Param start query string true "Range start (RFC3339)"
// @Param end query string true "Range end (RFC3339)"
// @Success 200 {file} file
// @Router /teachers/{id}/calendar.ics [get]
func (h *AvailabilityHandler) Calendar(c *gin.Context) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	var query dto.FreeSegmentsQuery
	if !bindQuery(c, &query, "invalid calendar query") {
		return
	}
	result, err := h.exports.CalendarFeed(c.Request.Context(), teacherID, query.Start, query.End)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}

type freeSummaryRenderer func(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*service.ExportResult, error)

func (h *AvailabilityHandler) freeSummaryFile(c *gin.Context, render freeSummaryRenderer) {
	teacherID := requireParam(c, "id")
	if teacherID == "" {
		return
	}
	var query dto.FreeSegmentsQuery
	if !bindQuery(c, &query, "invalid export query") {
		return
	}
	result, err := render(c.Request.Context(), teacherID, query.Start, query.End, query.Timezone)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}
