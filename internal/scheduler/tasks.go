package scheduler

import (
	"context"
	"fmt"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
)

// GenerationSweeper extends every active recurring pattern.
type GenerationSweeper interface {
	GenerationSweep(ctx context.Context) (*dto.SweepReport, error)
}

// DSTChecker re-anchors occurrences around timezone transitions.
type DSTChecker interface {
	DailyCheck(ctx context.Context) (*dto.SweepReport, error)
	HourlyCheck(ctx context.Context) (*dto.SweepReport, error)
}

// RegisterSweeps binds the generation and DST sweeps to their configured schedules.
// A task with an empty spec is left unregistered.
func RegisterSweeps(s *Scheduler, cfg config.SchedulerConfig, generation GenerationSweeper, dst DSTChecker) error {
	tasks := []struct {
		name string
		spec string
		run  Task
	}{
		{service.TaskGenerationSweep, cfg.GenerationCron, generation.GenerationSweep},
		{service.TaskDailyDSTCheck, cfg.DailyDSTCron, dst.DailyCheck},
		{service.TaskHourlyDSTCheck, cfg.HourlyDSTCron, dst.HourlyCheck},
	}
	for _, t := range tasks {
		if t.spec == "" {
			continue
		}
		if err := s.Register(t.name, t.spec, t.run); err != nil {
			return fmt.Errorf("register sweeps: %w", err)
		}
	}
	return nil
}
