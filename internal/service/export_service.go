package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/export"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

type freeSummaryProvider interface {
	FreeSummary(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*dto.FreeSummary, error)
}

type teacherOccurrenceLister interface {
	ListByTeacherInRange(ctx context.Context, teacherID string, start, end time.Time) ([]models.ClassOccurrence, error)
}

type tableRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type calendarRenderer interface {
	Render(feed export.Calendar) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	ProductID string
	MaxRange  time.Duration
}

// ExportResult is a rendered document ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders free-time summaries and lesson calendars.
type ExportService struct {
	summaries   freeSummaryProvider
	occurrences teacherOccurrenceLister
	profiles    teacherProfileReader
	csv         tableRenderer
	pdf         tableRenderer
	ics         calendarRenderer
	logger      *zap.Logger
	cfg         ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to the pkg/export defaults.
func NewExportService(summaries freeSummaryProvider, occurrences teacherOccurrenceLister, profiles teacherProfileReader, cfg ExportConfig, logger *zap.Logger, csv, pdf tableRenderer, ics calendarRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRange <= 0 {
		cfg.MaxRange = 92 * 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if ics == nil {
		ics = export.NewCalendarExporter(cfg.ProductID)
	}
	return &ExportService{
		summaries:   summaries,
		occurrences: occurrences,
		profiles:    profiles,
		csv:         csv,
		pdf:         pdf,
		ics:         ics,
		logger:      logger,
		cfg:         cfg,
	}
}

// FreeSummaryCSV renders the teacher's free segments as CSV.
func (s *ExportService) FreeSummaryCSV(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*ExportResult, error) {
	table, err := s.freeSummaryTable(ctx, teacherID, from, to, displayTZ)
	if err != nil {
		return nil, err
	}
	body, err := s.csv.Render(*table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return &ExportResult{Filename: fmt.Sprintf("free-%s.csv", teacherID), ContentType: "text/csv", Body: body}, nil
}

// FreeSummaryPDF renders the teacher's free segments as a printable PDF.
func (s *ExportService) FreeSummaryPDF(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*ExportResult, error) {
	table, err := s.freeSummaryTable(ctx, teacherID, from, to, displayTZ)
	if err != nil {
		return nil, err
	}
	body, err := s.pdf.Render(*table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return &ExportResult{Filename: fmt.Sprintf("free-%s.pdf", teacherID), ContentType: "application/pdf", Body: body}, nil
}

// CalendarFeed renders the teacher's lessons in [from, to) as an iCalendar feed.
func (s *ExportService) CalendarFeed(ctx context.Context, teacherID string, from, to time.Time) (*ExportResult, error) {
	from, to = interval.Normalize(from), interval.Normalize(to)
	if err := s.validateRange(teacherID, from, to); err != nil {
		return nil, err
	}
	profile, err := s.profiles.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Upstream(err, "failed to load teacher profile")
	}
	items, err := s.occurrences.ListByTeacherInRange(ctx, teacherID, from, to)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to load lessons")
	}

	feed := export.Calendar{Name: profile.FullName + " lessons", Timezone: profile.Timezone, Events: make([]export.CalendarEvent, 0, len(items))}
	for _, item := range items {
		feed.Events = append(feed.Events, calendarEvent(item))
	}
	body, err := s.ics.Render(feed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render calendar")
	}
	s.logger.Debug("calendar feed rendered", zap.String("teacher_id", teacherID), zap.Int("events", len(feed.Events)))
	return &ExportResult{Filename: fmt.Sprintf("lessons-%s.ics", teacherID), ContentType: "text/calendar", Body: body}, nil
}

func (s *ExportService) freeSummaryTable(ctx context.Context, teacherID string, from, to time.Time, displayTZ string) (*export.Table, error) {
	if err := s.validateRange(teacherID, interval.Normalize(from), interval.Normalize(to)); err != nil {
		return nil, err
	}
	summary, err := s.summaries.FreeSummary(ctx, teacherID, from, to, displayTZ)
	if err != nil {
		return nil, err
	}
	table := &export.Table{
		Title:   fmt.Sprintf("Free time for %s", summary.TeacherName),
		Caption: fmt.Sprintf("%s to %s (%s), %d minutes free", summary.From.Format(time.RFC3339), summary.To.Format(time.RFC3339), summary.Timezone, summary.TotalMins),
		Columns: []string{"Start", "End", "Minutes"},
		Rows:    make([][]string, 0, len(summary.Segments)),
	}
	for _, seg := range summary.Segments {
		start, end := seg.LocalStart, seg.LocalEnd
		if start == "" {
			start, end = seg.Start.Format(time.RFC3339), seg.End.Format(time.RFC3339)
		}
		table.Rows = append(table.Rows, []string{start, end, strconv.Itoa(seg.DurationMins)})
	}
	return table, nil
}

func (s *ExportService) validateRange(teacherID string, from, to time.Time) error {
	if err := validateWindow(teacherID, from, to); err != nil {
		return err
	}
	if to.Sub(from) > s.cfg.MaxRange {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("export range exceeds %d days", int(s.cfg.MaxRange.Hours()/24)))
	}
	return nil
}

func calendarEvent(item models.ClassOccurrence) export.CalendarEvent {
	summary := "Lesson"
	if item.Subject != nil && *item.Subject != "" {
		summary = *item.Subject + " lesson"
	}
	description := "Student " + item.StudentID
	if item.StudentName != nil && *item.StudentName != "" {
		description = "Student " + *item.StudentName
	}
	return export.CalendarEvent{
		UID:         item.ID + "@tutor-scheduler",
		Summary:     summary,
		Description: description,
		Start:       item.ScheduledAt,
		End:         item.EndsAt(),
		Cancelled:   item.Status == models.OccurrenceCancelled,
		Updated:     item.UpdatedAt,
	}
}
