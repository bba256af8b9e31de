package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

// Names of the scheduled DST checks.
const (
	TaskDailyDSTCheck  = "dailyDSTCheck"
	TaskHourlyDSTCheck = "hourlyDSTCheck"
)

type reanchorStore interface {
	ListForReanchor(ctx context.Context, timezone string, from time.Time) ([]models.ClassOccurrence, error)
	ListAnchorTimezones(ctx context.Context) ([]string, error)
	UpdateSchedule(ctx context.Context, exec sqlx.ExtContext, item *models.ClassOccurrence) error
}

type participantNotifier interface {
	Notify(ctx context.Context, note models.Notification)
}

type reanchorObserver interface {
	AddOccurrencesReanchored(n int)
	ObserveSweep(task string, failed int, duration time.Duration)
}

// DSTConfig governs the scheduled checks.
type DSTConfig struct {
	HeavyMonths []time.Month
}

// DSTService detects UTC offset transitions and keeps anchored lessons at their local wall time.
type DSTService struct {
	occurrences reanchorStore
	notifier    participantNotifier
	clock       clock.Clock
	metrics     reanchorObserver
	logger      *zap.Logger
	heavy       map[time.Month]bool
}

// NewDSTService wires re-anchor dependencies. notifier and metrics may be nil.
func NewDSTService(occurrences reanchorStore, notifier participantNotifier, clk clock.Clock, metrics reanchorObserver, logger *zap.Logger, cfg DSTConfig) *DSTService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	months := cfg.HeavyMonths
	if len(months) == 0 {
		months = []time.Month{time.March, time.April, time.September, time.October, time.November}
	}
	heavy := make(map[time.Month]bool, len(months))
	for _, m := range months {
		heavy[m] = true
	}
	return &DSTService{
		occurrences: occurrences,
		notifier:    notifier,
		clock:       clk,
		metrics:     metrics,
		logger:      logger,
		heavy:       heavy,
	}
}

// DetectTransitions finds the instants in year where the timezone's UTC offset changes.
// Month boundaries are compared and any change is bisected down to the second.
func (s *DSTService) DetectTransitions(timezone string, year int) ([]models.DSTTransition, error) {
	if timezone == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timezone is required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("unknown timezone %q", timezone))
	}

	transitions := make([]models.DSTTransition, 0, 2)
	for month := time.January; month <= time.December; month++ {
		lo := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		hi := lo.AddDate(0, 1, 0)
		before, after := offsetSeconds(lo, loc), offsetSeconds(hi, loc)
		if before == after {
			continue
		}
		for hi.Sub(lo) > time.Second {
			mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
			if offsetSeconds(mid, loc) == before {
				lo = mid
			} else {
				hi = mid
			}
		}
		kind := models.TransitionForward
		if after < before {
			kind = models.TransitionBackward
		}
		transitions = append(transitions, models.DSTTransition{
			Timezone:            loc.String(),
			Instant:             hi.UTC(),
			Type:                kind,
			OffsetBeforeMinutes: before / 60,
			OffsetAfterMinutes:  offsetSeconds(hi, loc) / 60,
		})
	}
	return transitions, nil
}

// ReanchorForTransition rewrites the UTC instant of every scheduled occurrence anchored to timezone
// at or after the transition so that its local wall time is unchanged.
func (s *DSTService) ReanchorForTransition(ctx context.Context, timezone string, transition models.DSTTransition) (*dto.ReanchorReport, error) {
	if timezone == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timezone is required")
	}
	if transition.Timezone != "" && transition.Timezone != timezone {
		return nil, appErrors.Clone(appErrors.ErrValidation, "transition belongs to a different timezone")
	}
	if transition.Instant.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "transition instant is required")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("unknown timezone %q", timezone))
	}
	transition.Timezone = timezone

	report := &dto.ReanchorReport{Timezone: timezone, Instant: transition.Instant.UTC(), Errors: []dto.SweepError{}}
	items, err := s.occurrences.ListForReanchor(ctx, timezone, transition.Instant)
	if err != nil {
		return nil, appErrors.Upstream(err, "failed to load occurrences for reanchor")
	}

	for i := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		occ := items[i]
		report.Examined++
		if occ.AnchorTimezone != timezone || !occ.Anchor.Valid() {
			report.Skipped++
			continue
		}
		changed, err := s.reanchorOne(ctx, loc, &occ, transition)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, dto.SweepError{ID: occ.ID, Message: err.Error()})
			s.logger.Warn("reanchor failed, will retry on next sweep",
				zap.String("occurrence_id", occ.ID), zap.String("timezone", timezone), zap.Error(err))
			continue
		}
		if changed {
			report.Adjusted++
		}
	}

	if s.metrics != nil {
		s.metrics.AddOccurrencesReanchored(report.Adjusted)
	}
	return report, nil
}

func (s *DSTService) reanchorOne(ctx context.Context, loc *time.Location, occ *models.ClassOccurrence, transition models.DSTTransition) (bool, error) {
	represented := transition.OffsetBeforeMinutes
	if occ.AnchorOffsetMinutes != nil {
		represented = *occ.AnchorOffsetMinutes
	}
	wall := occ.ScheduledAt.UTC().Add(time.Duration(represented) * time.Minute)
	target := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, loc)
	targetOffset := offsetSeconds(target, loc) / 60

	if target.Equal(occ.ScheduledAt) {
		if occ.AnchorOffsetMinutes != nil && *occ.AnchorOffsetMinutes == targetOffset {
			return false, nil
		}
		occ.AnchorOffsetMinutes = intRef(targetOffset)
		if err := s.occurrences.UpdateSchedule(ctx, nil, occ); err != nil {
			return false, fmt.Errorf("record anchor offset: %w", err)
		}
		return false, nil
	}

	old := occ.ScheduledAt.UTC()
	occ.ScheduledAt = target.UTC()
	occ.AnchorOffsetMinutes = intRef(targetOffset)
	if err := occ.AppendAdjustment(models.DSTAdjustment{
		OldInstant: old,
		NewInstant: occ.ScheduledAt,
		Reason:     fmt.Sprintf("%s offset transition in %s", transition.Type, transition.Timezone),
		Transition: transition,
		AdjustedAt: s.clock.Now().UTC(),
	}); err != nil {
		return false, err
	}
	if err := s.occurrences.UpdateSchedule(ctx, nil, occ); err != nil {
		return false, fmt.Errorf("update occurrence schedule: %w", err)
	}

	s.notifyParticipants(ctx, *occ, old, target)
	return true, nil
}

func (s *DSTService) notifyParticipants(ctx context.Context, occ models.ClassOccurrence, old, target time.Time) {
	if s.notifier == nil {
		return
	}
	meta, err := json.Marshal(map[string]any{
		"occurrence_id": occ.ID,
		"old_instant":   old,
		"new_instant":   target.UTC(),
		"timezone":      occ.AnchorTimezone,
	})
	if err != nil {
		meta = []byte("{}")
	}
	body := fmt.Sprintf("Your lesson was adjusted for a clock change in %s. It still starts at %s local time (%s UTC).",
		occ.AnchorTimezone, target.Format("Mon 2 Jan 15:04"), target.UTC().Format(time.RFC3339))
	for _, recipient := range []string{occ.TeacherID, occ.StudentID} {
		if recipient == "" {
			continue
		}
		s.notifier.Notify(ctx, models.Notification{
			RecipientID: recipient,
			Title:       "Lesson time updated",
			Body:        body,
			Metadata:    types.JSONText(meta),
		})
	}
}

// DailyCheck reanchors every anchor timezone in use against all of this year's transitions.
func (s *DSTService) DailyCheck(ctx context.Context) (*dto.SweepReport, error) {
	return s.runCheck(ctx, TaskDailyDSTCheck, func(models.DSTTransition) bool { return true })
}

// HourlyCheck runs only during DST-heavy months and only for transitions of the current month.
func (s *DSTService) HourlyCheck(ctx context.Context) (*dto.SweepReport, error) {
	now := s.clock.Now().UTC()
	if !s.heavy[now.Month()] {
		return &dto.SweepReport{Task: TaskHourlyDSTCheck, Errors: []dto.SweepError{}}, nil
	}
	return s.runCheck(ctx, TaskHourlyDSTCheck, func(tr models.DSTTransition) bool {
		return tr.Instant.Year() == now.Year() && tr.Instant.Month() == now.Month()
	})
}

func (s *DSTService) runCheck(ctx context.Context, task string, include func(models.DSTTransition) bool) (*dto.SweepReport, error) {
	started := time.Now()
	report := &dto.SweepReport{Task: task, Errors: []dto.SweepError{}}
	zones, err := s.occurrences.ListAnchorTimezones(ctx)
	if err != nil {
		return report, appErrors.Upstream(err, "failed to list anchor timezones")
	}
	year := s.clock.Now().UTC().Year()

	var sweepErr error
	for _, zone := range zones {
		if err := ctx.Err(); err != nil {
			sweepErr = err
			break
		}
		report.Processed++
		transitions, err := s.DetectTransitions(zone, year)
		if err != nil {
			report.AddError(zone, err)
			continue
		}
		zoneFailed := false
		for _, tr := range transitions {
			if !include(tr) {
				continue
			}
			res, err := s.ReanchorForTransition(ctx, zone, tr)
			if res != nil {
				report.Adjusted += res.Adjusted
				for _, e := range res.Errors {
					report.Errors = append(report.Errors, e)
				}
				if res.Failed > 0 {
					zoneFailed = true
				}
			}
			if err != nil {
				report.Errors = append(report.Errors, dto.SweepError{ID: zone, Message: err.Error()})
				zoneFailed = true
			}
		}
		if zoneFailed {
			report.Failed++
			continue
		}
		report.Succeeded++
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(task, report.Failed, time.Since(started))
	}
	s.logger.Info("dst check finished",
		zap.String("task", task),
		zap.Int("timezones", report.Processed),
		zap.Int("adjusted", report.Adjusted),
		zap.Int("failed", report.Failed),
	)
	return report, sweepErr
}

func offsetSeconds(t time.Time, loc *time.Location) int {
	_, offset := t.In(loc).Zone()
	return offset
}
