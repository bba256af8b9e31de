package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

// TaskGenerationSweep names the recurring generation sweep.
const TaskGenerationSweep = "generationSweep"

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type recurringPatternStore interface {
	FindByID(ctx context.Context, id string) (*models.RecurringPattern, error)
	ListActive(ctx context.Context) ([]models.RecurringPattern, error)
	UpdateWatermark(ctx context.Context, exec sqlx.ExtContext, id string, through time.Time) error
}

type patternOccurrenceWriter interface {
	CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) (bool, error)
}

type leaseStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type generationObserver interface {
	AddOccurrencesGenerated(n int)
	ObserveSweep(task string, failed int, duration time.Duration)
}

// RecurrenceConfig governs generation behaviour.
type RecurrenceConfig struct {
	DefaultHorizonMonths int
	LeaseEnabled         bool
	LeaseTTL             time.Duration
}

// RecurrenceService materialises weekly patterns into concrete occurrences.
type RecurrenceService struct {
	patterns    recurringPatternStore
	occurrences patternOccurrenceWriter
	leases      leaseStore
	tx          txProvider
	clock       clock.Clock
	metrics     generationObserver
	logger      *zap.Logger
	cfg         RecurrenceConfig
}

// NewRecurrenceService wires generator dependencies. leases may be nil.
func NewRecurrenceService(
	patterns recurringPatternStore,
	occurrences patternOccurrenceWriter,
	leases leaseStore,
	tx txProvider,
	clk clock.Clock,
	metrics generationObserver,
	logger *zap.Logger,
	cfg RecurrenceConfig,
) *RecurrenceService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultHorizonMonths <= 0 {
		cfg.DefaultHorizonMonths = 2
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	return &RecurrenceService{
		patterns:    patterns,
		occurrences: occurrences,
		leases:      leases,
		tx:          tx,
		clock:       clk,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// GenerateOccurrences materialises the pattern through now + horizonMonths and returns the created ids.
// A horizonMonths of zero uses the pattern's own horizon. Repeated calls create nothing new.
func (s *RecurrenceService) GenerateOccurrences(ctx context.Context, patternID string, horizonMonths int) ([]string, error) {
	if patternID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "pattern id is required")
	}
	if horizonMonths < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "horizon must not be negative")
	}
	pattern, err := s.patterns.FindByID(ctx, patternID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recurring pattern not found")
		}
		return nil, appErrors.Upstream(err, "failed to load recurring pattern")
	}
	if pattern.Status != models.PatternActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "recurring pattern is not active")
	}

	release, err := s.acquire(ctx, pattern.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	created, err := s.generate(ctx, *pattern, horizonMonths)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AddOccurrencesGenerated(len(created))
	}
	return created, nil
}

// GenerationSweep advances every active pattern. One pattern's failure does not stop the others,
// and cancellation is honoured between patterns.
func (s *RecurrenceService) GenerationSweep(ctx context.Context) (*dto.SweepReport, error) {
	started := time.Now()
	report := &dto.SweepReport{Task: TaskGenerationSweep, Errors: []dto.SweepError{}}

	patterns, err := s.patterns.ListActive(ctx)
	if err != nil {
		return report, appErrors.Upstream(err, "failed to list recurring patterns")
	}

	var sweepErr error
	for _, pattern := range patterns {
		if err := ctx.Err(); err != nil {
			sweepErr = err
			break
		}
		report.Processed++

		release, err := s.acquire(ctx, pattern.ID)
		if err != nil {
			if appErrors.Is(err, appErrors.ErrLeaseHeld) {
				report.Skipped++
				continue
			}
			report.AddError(pattern.ID, err)
			continue
		}
		created, err := s.generate(ctx, pattern, 0)
		release()
		if err != nil {
			s.logger.Error("pattern generation failed", zap.String("pattern_id", pattern.ID), zap.Error(err))
			report.AddError(pattern.ID, err)
			continue
		}
		report.Succeeded++
		report.Created += len(created)
	}

	if s.metrics != nil {
		s.metrics.AddOccurrencesGenerated(report.Created)
		s.metrics.ObserveSweep(TaskGenerationSweep, report.Failed, time.Since(started))
	}
	s.logger.Info("generation sweep finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("created", report.Created),
	)
	return report, sweepErr
}

func (s *RecurrenceService) acquire(ctx context.Context, patternID string) (func(), error) {
	if s.leases == nil || !s.cfg.LeaseEnabled {
		return func() {}, nil
	}
	key := "lease:pattern:" + patternID
	ok, err := s.leases.Acquire(ctx, key, s.cfg.LeaseTTL)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to acquire generation lease")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrLeaseHeld, "pattern is being generated by another worker")
	}
	return func() {
		if err := s.leases.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("failed to release generation lease", zap.String("pattern_id", patternID), zap.Error(err))
		}
	}, nil
}

// generate writes the occurrences of one pattern and its watermark in a single transaction.
func (s *RecurrenceService) generate(ctx context.Context, pattern models.RecurringPattern, horizonMonths int) ([]string, error) {
	source, err := pattern.ResolveSource()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence pattern")
	}
	if horizonMonths <= 0 {
		horizonMonths = pattern.HorizonMonths
	}
	if horizonMonths <= 0 {
		horizonMonths = s.cfg.DefaultHorizonMonths
	}

	now := s.clock.Now().UTC()
	firstDay := utcMidnight(now)
	if pattern.GeneratedThrough != nil {
		next := utcMidnight(*pattern.GeneratedThrough).AddDate(0, 0, 1)
		if next.After(firstDay) {
			firstDay = next
		}
	}
	lastDay := utcMidnight(now.AddDate(0, horizonMonths, 0))
	if firstDay.After(lastDay) {
		return []string{}, nil
	}

	days, err := iterationDays(firstDay, lastDay)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build iteration days")
	}
	locations, err := slotLocations(source)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence pattern")
	}

	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	created := make([]string, 0)
	for _, day := range days {
		for _, weekday := range source.Weekdays() {
			for _, slot := range source.Slots[weekday] {
				// The UTC-midnight iteration day is read in the slot's zone, so west of UTC
				// it names the previous local date.
				loc := locations[slot.Timezone]
				local := day.In(loc)
				if local.Weekday() != weekday {
					continue
				}
				y, m, d := local.Date()
				instant := time.Date(y, m, d, slot.Hour, slot.Minute, 0, 0, loc)
				if instant.Before(now) {
					continue
				}
				item := newPatternOccurrence(pattern, slot, instant, weekday)
				var ok bool
				ok, err = s.occurrences.CreateIfAbsent(ctx, tx, item)
				if err != nil {
					err = appErrors.Upstream(err, "failed to persist occurrence")
					return nil, err
				}
				if ok {
					created = append(created, item.ID)
				}
			}
		}
	}

	if err = s.patterns.UpdateWatermark(ctx, tx, pattern.ID, lastDay); err != nil {
		err = appErrors.Upstream(err, "failed to advance pattern watermark")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Upstream(err, "failed to commit generation")
		return nil, err
	}

	s.logger.Debug("pattern generated",
		zap.String("pattern_id", pattern.ID),
		zap.String("source", string(source.Kind)),
		zap.Time("through", lastDay),
		zap.Int("created", len(created)),
	)
	return created, nil
}

func newPatternOccurrence(pattern models.RecurringPattern, slot models.PatternSlot, instant time.Time, weekday time.Weekday) *models.ClassOccurrence {
	_, offset := instant.Zone()
	key := fmt.Sprintf("%s|%d|%02d%02d|%s", instant.Format("2006-01-02"), weekday, slot.Hour, slot.Minute, slot.Timezone)
	patternID := pattern.ID
	return &models.ClassOccurrence{
		TeacherID:           pattern.TeacherID,
		StudentID:           pattern.StudentID,
		Subject:             pattern.Subject,
		ScheduledAt:         instant.UTC(),
		DurationMinutes:     slot.DurationMinutes,
		Anchor:              pattern.Anchor,
		AnchorTimezone:      slot.Timezone,
		AnchorOffsetMinutes: intRef(offset / 60),
		RecurringPatternID:  &patternID,
		OccurrenceKey:       &key,
		Status:              models.OccurrenceScheduled,
	}
}

func iterationDays(first, last time.Time) ([]time.Time, error) {
	rule, err := rrule.NewRRule(rrule.ROption{Freq: rrule.DAILY, Dtstart: first, Until: last})
	if err != nil {
		return nil, err
	}
	return rule.All(), nil
}

func slotLocations(source models.RecurrenceSource) (map[string]*time.Location, error) {
	locations := make(map[string]*time.Location)
	for _, slots := range source.Slots {
		for _, slot := range slots {
			if _, ok := locations[slot.Timezone]; ok {
				continue
			}
			loc, err := time.LoadLocation(slot.Timezone)
			if err != nil {
				return nil, err
			}
			locations[slot.Timezone] = loc
		}
	}
	return locations, nil
}

func utcMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intRef(v int) *int {
	return &v
}
