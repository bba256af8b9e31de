package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/pkg/response"
)

type teacherSearchService interface {
	SearchTeachers(ctx context.Context, req dto.SearchTeachersRequest, displayTZ string) (*dto.SearchTeachersResponse, error)
}

// SearchHandler exposes teacher search.
type SearchHandler struct {
	search teacherSearchService
}

// NewSearchHandler constructs the handler.
func NewSearchHandler(search teacherSearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search godoc
// @Summary Find teachers free for the requested weekly segments
// @Tags Search
// @Accept json
// @Produce json
// @Param tz query string false "Display timezone for requested and returned segments"
// @Param payload body dto.SearchTeachersRequest true "Search payload"
// @Success 200 {object} response.Envelope
// @Router /search/teachers [post]
func (h *SearchHandler) Search(c *gin.Context) {
	var req dto.SearchTeachersRequest
	if !bindJSON(c, &req, "invalid search payload") {
		return
	}
	result, err := h.search.SearchTeachers(c.Request.Context(), req, c.Query("tz"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
