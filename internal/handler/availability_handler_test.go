package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

type availabilityServiceMock struct {
	result    *models.AvailabilityResult
	free      []interval.Interval
	err       error
	teacherID string
	excludeID string
}

func (m *availabilityServiceMock) CheckAvailability(ctx context.Context, teacherID string, start, end time.Time, excludeID string) (*models.AvailabilityResult, error) {
	m.teacherID, m.excludeID = teacherID, excludeID
	return m.result, m.err
}

func (m *availabilityServiceMock) FreeSegments(ctx context.Context, teacherID string, windowStart, windowEnd time.Time) ([]interval.Interval, error) {
	return m.free, m.err
}

func (m *availabilityServiceMock) FreeSummary(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*dto.FreeSummary, error) {
	return &dto.FreeSummary{TeacherID: teacherID, Timezone: displayTZ}, m.err
}

type exportServiceMock struct {
	err error
}

func (m *exportServiceMock) FreeSummaryCSV(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*service.ExportResult, error) {
	return &service.ExportResult{Filename: "free.csv", ContentType: "text/csv", Body: []byte("Start,End,Minutes\n")}, m.err
}

func (m *exportServiceMock) FreeSummaryPDF(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*service.ExportResult, error) {
	return &service.ExportResult{Filename: "free.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.3")}, m.err
}

func (m *exportServiceMock) CalendarFeed(ctx context.Context, teacherID string, from, to time.Time) (*service.ExportResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportResult{Filename: "lessons.ics", ContentType: "text/calendar", Body: []byte("BEGIN:VCALENDAR")}, nil
}

func newTeacherContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "teacher-1"}}
	return c, w
}

func TestAvailabilityHandlerCheck(t *testing.T) {
	engine := &availabilityServiceMock{result: &models.AvailabilityResult{Available: false, ConflictType: models.ConflictNoWeeklySlot}}
	handler := NewAvailabilityHandler(engine, &exportServiceMock{})
	c, w := newTeacherContext(http.MethodGet, "/teachers/teacher-1/availability?start=2025-03-10T15:00:00Z&end=2025-03-10T16:00:00Z&excludeId=occ-9")

	handler.Check(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "teacher-1", engine.teacherID)
	require.Equal(t, "occ-9", engine.excludeID)
	var body struct {
		Data models.AvailabilityResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, models.ConflictNoWeeklySlot, body.Data.ConflictType)
}

func TestAvailabilityHandlerCheckRejectsBadQuery(t *testing.T) {
	handler := NewAvailabilityHandler(&availabilityServiceMock{}, &exportServiceMock{})
	c, w := newTeacherContext(http.MethodGet, "/teachers/teacher-1/availability?start=yesterday")

	handler.Check(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailabilityHandlerFreeSegmentsRendersLocalTimes(t *testing.T) {
	start := time.Date(2025, time.March, 10, 15, 0, 0, 0, time.UTC)
	engine := &availabilityServiceMock{free: []interval.Interval{interval.New(start, start.Add(90*time.Minute), interval.TypeFree, nil)}}
	handler := NewAvailabilityHandler(engine, &exportServiceMock{})
	c, w := newTeacherContext(http.MethodGet, "/teachers/teacher-1/free-segments?start=2025-03-10T00:00:00Z&end=2025-03-11T00:00:00Z&tz=Africa/Cairo")

	handler.FreeSegments(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []dto.Segment          `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "2025-03-10T17:00:00+02:00", body.Data[0].LocalStart)
	require.Equal(t, 90, body.Data[0].DurationMins)
	require.EqualValues(t, 90, body.Meta["totalMinutes"])

	c, w = newTeacherContext(http.MethodGet, "/teachers/teacher-1/free-segments?start=2025-03-10T00:00:00Z&end=2025-03-11T00:00:00Z&tz=Mars/Base")
	handler.FreeSegments(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailabilityHandlerExports(t *testing.T) {
	handler := NewAvailabilityHandler(&availabilityServiceMock{}, &exportServiceMock{})
	target := "/teachers/teacher-1/free-summary.csv?start=2025-03-10T00:00:00Z&end=2025-03-11T00:00:00Z"

	c, w := newTeacherContext(http.MethodGet, target)
	handler.FreeSummaryCSV(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "free.csv")

	c, w = newTeacherContext(http.MethodGet, target)
	handler.FreeSummaryPDF(c)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	failing := NewAvailabilityHandler(&availabilityServiceMock{}, &exportServiceMock{err: appErrors.ErrNotFound})
	c, w = newTeacherContext(http.MethodGet, target)
	failing.Calendar(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
