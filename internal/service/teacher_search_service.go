package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
	"github.com/noah-isme/tutor-scheduler-api/pkg/interval"
)

const (
	matchPoints      = 100
	anyTimeRequested = "any"
)

type candidateLister interface {
	ListActive(ctx context.Context, ids []string) ([]models.TeacherProfile, error)
}

type freeSegmentFinder interface {
	FreeSegments(ctx context.Context, teacherID string, windowStart, windowEnd time.Time) ([]interval.Interval, error)
}

type searchObserver interface {
	ObserveSearch(duration time.Duration)
}

// SearchConfig bounds the per-request fan-out.
type SearchConfig struct {
	TeacherTimeout time.Duration
	Concurrency    int
	MaxDays        int
}

// TeacherSearchService answers "who is free for X" across many teachers.
type TeacherSearchService struct {
	candidates candidateLister
	slots      weeklySlotReader
	engine     freeSegmentFinder
	clock      clock.Clock
	metrics    searchObserver
	logger     *zap.Logger
	cfg        SearchConfig
}

// NewTeacherSearchService wires search dependencies.
func NewTeacherSearchService(
	candidates candidateLister,
	slots weeklySlotReader,
	engine freeSegmentFinder,
	clk clock.Clock,
	metrics searchObserver,
	logger *zap.Logger,
	cfg SearchConfig,
) *TeacherSearchService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TeacherTimeout <= 0 {
		cfg.TeacherTimeout = 3 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 28
	}
	return &TeacherSearchService{
		candidates: candidates,
		slots:      slots,
		engine:     engine,
		clock:      clk,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

type searchPlan struct {
	loc      *time.Location
	from     time.Time
	days     int
	duration time.Duration
	byDay    map[time.Weekday][]requestedWindow
	anyTime  map[time.Weekday]bool
}

type requestedWindow struct {
	startMin int
	endMin   int
	label    string
}

type teacherOutcome struct {
	match   dto.TeacherMatch
	narrow  int
	relaxed int
	err     error
}

// SearchTeachers scores every candidate teacher against the request. Result times are rendered in displayTZ.
// Candidate lookup failures degrade to an empty result carrying a diagnostic.
func (s *TeacherSearchService) SearchTeachers(ctx context.Context, req dto.SearchTeachersRequest, displayTZ string) (*dto.SearchTeachersResponse, error) {
	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSearch(time.Since(started))
		}
	}()

	plan, err := s.buildPlan(req, displayTZ)
	if err != nil {
		return nil, err
	}
	resp := &dto.SearchTeachersResponse{
		Timezone:        plan.loc.String(),
		ExactMatches:    []dto.TeacherMatch{},
		FlexibleMatches: []dto.TeacherMatch{},
	}

	profiles, err := s.candidates.ListActive(ctx, req.TeacherIDs)
	if err != nil {
		s.logger.Error("teacher search candidate lookup failed", zap.Error(err))
		resp.Diagnostic = "candidate lookup failed: " + err.Error()
		return resp, nil
	}
	resp.Stats.Candidates = len(profiles)

	eligible := make([]models.TeacherProfile, 0, len(profiles))
	for _, profile := range profiles {
		if !profile.IsActive() || !passesFilters(profile, req.Filters) {
			resp.Stats.Filtered++
			continue
		}
		eligible = append(eligible, profile)
	}

	outcomes := make([]teacherOutcome, len(eligible))
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	for i := range eligible {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = teacherOutcome{err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			outcomes[i] = s.evaluate(ctx, eligible[i], plan)
		}(i)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, outcome := range outcomes {
		switch {
		case outcome.err != nil:
			resp.Stats.Failed++
			s.logger.Warn("teacher search evaluation failed", zap.String("teacher_id", eligible[i].ID), zap.Error(outcome.err))
		case outcome.narrow > 0:
			resp.ExactMatches = append(resp.ExactMatches, outcome.match)
		case outcome.relaxed > 0:
			resp.FlexibleMatches = append(resp.FlexibleMatches, outcome.match)
		default:
			resp.Stats.NoAvailability++
		}
	}
	sortMatches(resp.ExactMatches)
	sortMatches(resp.FlexibleMatches)
	resp.Stats.Exact = len(resp.ExactMatches)
	resp.Stats.Flexible = len(resp.FlexibleMatches)
	if resp.Stats.Failed > 0 {
		resp.Diagnostic = fmt.Sprintf("%d teacher(s) could not be evaluated", resp.Stats.Failed)
	}
	return resp, nil
}

func (s *TeacherSearchService) evaluate(parent context.Context, profile models.TeacherProfile, plan *searchPlan) teacherOutcome {
	ctx, cancel := context.WithTimeout(parent, s.cfg.TeacherTimeout)
	defer cancel()

	slots, err := s.slots.ListActiveByTeacher(ctx, profile.ID)
	if err != nil {
		return teacherOutcome{err: fmt.Errorf("load weekly slots: %w", err)}
	}
	bypass := profile.AlwaysAvailable && len(activeSlots(slots)) == 0

	rangeEnd := plan.from.AddDate(0, 0, plan.days)
	free, err := s.engine.FreeSegments(ctx, profile.ID, plan.from, rangeEnd)
	if err != nil {
		return teacherOutcome{err: err}
	}
	if err := ctx.Err(); err != nil {
		return teacherOutcome{err: err}
	}

	outcome := teacherOutcome{match: dto.TeacherMatch{
		TeacherID:   profile.ID,
		TeacherName: profile.FullName,
		Segments:    []dto.MatchedSegment{},
	}}
	for offset := 0; offset < plan.days; offset++ {
		y, m, d := plan.from.AddDate(0, 0, offset).Date()
		dayStart := time.Date(y, m, d, 0, 0, 0, 0, plan.loc)
		dayEnd := time.Date(y, m, d+1, 0, 0, 0, 0, plan.loc)
		weekday := dayStart.Weekday()

		relaxedDay := plan.anyTime[weekday]
		dayNarrow := 0
		for _, req := range plan.byDay[weekday] {
			ws := time.Date(y, m, d, 0, req.startMin, 0, 0, plan.loc)
			we := time.Date(y, m, d, 0, req.endMin, 0, 0, plan.loc)
			if !bypass && !anySlotFits(slots, ws, we) {
				relaxedDay = true
				continue
			}
			hits := fittingSegments(free, ws, we, plan.duration)
			if len(hits) == 0 {
				relaxedDay = true
				continue
			}
			dayNarrow++
			outcome.match.Segments = append(outcome.match.Segments, renderMatches(hits, plan.loc, req.label)...)
		}
		outcome.narrow += dayNarrow
		if !relaxedDay || dayNarrow > 0 {
			continue
		}
		hits := fittingSegments(free, dayStart, dayEnd, plan.duration)
		if len(hits) == 0 {
			continue
		}
		outcome.relaxed++
		outcome.match.Segments = append(outcome.match.Segments, renderMatches(hits, plan.loc, anyTimeRequested)...)
	}
	outcome.match.Score = matchPoints * (outcome.narrow + outcome.relaxed)
	return outcome
}

func (s *TeacherSearchService) buildPlan(req dto.SearchTeachersRequest, displayTZ string) (*searchPlan, error) {
	loc, err := loadDisplayLocation(displayTZ)
	if err != nil {
		return nil, err
	}
	if len(req.Days) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one day is required")
	}
	if req.DurationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}
	if f := req.Filters; f.MinAge != nil && f.MaxAge != nil && *f.MinAge > *f.MaxAge {
		return nil, appErrors.Clone(appErrors.ErrValidation, "minAge must not exceed maxAge")
	}

	weeks := req.Weeks
	if weeks <= 0 {
		weeks = 1
	}
	plan := &searchPlan{
		loc:      loc,
		days:     weeks * 7,
		duration: time.Duration(req.DurationMinutes) * time.Minute,
		byDay:    make(map[time.Weekday][]requestedWindow),
		anyTime:  make(map[time.Weekday]bool),
	}
	if plan.days > s.cfg.MaxDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("search range must not exceed %d days", s.cfg.MaxDays))
	}

	if req.From != "" {
		from, err := time.ParseInLocation("2006-01-02", req.From, loc)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "from must be formatted as YYYY-MM-DD")
		}
		plan.from = from
	} else {
		y, m, d := s.clock.Now().In(loc).Date()
		plan.from = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}

	seen := make(map[time.Weekday]bool, len(req.Days))
	for _, day := range req.Days {
		if day.Weekday < 0 || day.Weekday > 6 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "weekday must be between 0 and 6")
		}
		weekday := time.Weekday(day.Weekday)
		if seen[weekday] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("weekday %d requested twice", day.Weekday))
		}
		seen[weekday] = true
		if len(day.Segments) == 0 {
			plan.anyTime[weekday] = true
			continue
		}
		for _, seg := range day.Segments {
			start, errStart := models.ParseClock(seg.Start)
			end, errEnd := models.ParseClock(seg.End)
			if errStart != nil || errEnd != nil || start >= end {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid segment %s-%s", seg.Start, seg.End))
			}
			if end-start < req.DurationMinutes {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("segment %s-%s is shorter than the lesson", seg.Start, seg.End))
			}
			plan.byDay[weekday] = append(plan.byDay[weekday], requestedWindow{
				startMin: start,
				endMin:   end,
				label:    seg.Start + "-" + seg.End,
			})
		}
	}
	return plan, nil
}

func passesFilters(profile models.TeacherProfile, filters dto.SearchFilters) bool {
	if filters.Subject != "" && !profile.Teaches(filters.Subject) {
		return false
	}
	if filters.Gender != "" && (profile.Gender == nil || !strings.EqualFold(*profile.Gender, filters.Gender)) {
		return false
	}
	if filters.MinAge != nil && (profile.Age == nil || *profile.Age < *filters.MinAge) {
		return false
	}
	if filters.MaxAge != nil && (profile.Age == nil || *profile.Age > *filters.MaxAge) {
		return false
	}
	return true
}

func activeSlots(slots []models.WeeklyAvailabilitySlot) []models.WeeklyAvailabilitySlot {
	out := make([]models.WeeklyAvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		if slot.IsActive() {
			out = append(out, slot)
		}
	}
	return out
}

func anySlotFits(slots []models.WeeklyAvailabilitySlot, start, end time.Time) bool {
	for _, slot := range slots {
		if !slot.IsActive() {
			continue
		}
		if ok, err := windowFitsSlot(slot, start, end); err == nil && ok {
			return true
		}
	}
	return false
}

// fittingSegments clips free time to the window and keeps pieces long enough for a lesson.
func fittingSegments(free []interval.Interval, start, end time.Time, minimum time.Duration) []interval.Interval {
	window := interval.Interval{Start: start.UTC(), End: end.UTC()}
	out := make([]interval.Interval, 0)
	for _, iv := range free {
		clipped, ok := interval.Clip(iv, window)
		if !ok || clipped.Duration() < minimum {
			continue
		}
		out = append(out, clipped)
	}
	return out
}

func renderMatches(hits []interval.Interval, loc *time.Location, requested string) []dto.MatchedSegment {
	out := make([]dto.MatchedSegment, 0, len(hits))
	for _, iv := range hits {
		local := iv.Start.In(loc)
		out = append(out, dto.MatchedSegment{
			Date:      local.Format("2006-01-02"),
			Weekday:   int(local.Weekday()),
			Start:     local.Format(time.RFC3339),
			End:       iv.End.In(loc).Format(time.RFC3339),
			Requested: requested,
		})
	}
	return out
}

func sortMatches(matches []dto.TeacherMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].TeacherName != matches[j].TeacherName {
			return matches[i].TeacherName < matches[j].TeacherName
		}
		return matches[i].TeacherID < matches[j].TeacherID
	})
}
