package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/repository"
	"github.com/noah-isme/tutor-scheduler-api/internal/scheduler"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
	"github.com/noah-isme/tutor-scheduler-api/pkg/cache"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
	"github.com/noah-isme/tutor-scheduler-api/pkg/database"
)

// Context is shared by every command.
type Context struct {
	Config *config.Config
	Logger *zap.Logger
	Out    io.Writer
}

func (c *Context) emit(v interface{}) error {
	enc := yaml.NewEncoder(c.Out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// TransitionsCmd prints detected transitions. It needs no database.
type TransitionsCmd struct {
	Timezone string `arg:"" help:"IANA timezone, e.g. Europe/London."`
	Year     int    `help:"Calendar year. Defaults to the current year."`
}

func (c *TransitionsCmd) Run(ctx *Context) error {
	year := c.Year
	if year == 0 {
		year = time.Now().UTC().Year()
	}
	transitions, err := service.NewDSTService(nil, nil, nil, nil, ctx.Logger, service.DSTConfig{}).DetectTransitions(c.Timezone, year)
	if err != nil {
		return err
	}
	return ctx.emit(transitions)
}

// TasksCmd prints the sweeps registered from configuration.
type TasksCmd struct{}

func (c *TasksCmd) Run(ctx *Context) error {
	sched, err := newSweepScheduler(ctx, nil, nil)
	if err != nil {
		return err
	}
	return ctx.emit(sched.Entries())
}

// RunTaskCmd executes one sweep and prints its report.
type RunTaskCmd struct {
	Name    string        `arg:"" enum:"generationSweep,dailyDSTCheck,hourlyDSTCheck" help:"Sweep name."`
	Timeout time.Duration `default:"10m" help:"Abort the sweep after this long."`
}

func (c *RunTaskCmd) Run(ctx *Context) error {
	runCtx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	db, err := database.NewPostgres(runCtx, ctx.Config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	sched, err := newSweepScheduler(ctx, db, nil)
	if err != nil {
		return err
	}
	report, runErr := sched.RunTask(runCtx, c.Name)
	if report != nil {
		if err := ctx.emit(report); err != nil {
			return err
		}
	}
	return runErr
}

// ReanchorCmd re-anchors lessons for the first transition of timezone on or after --from.
type ReanchorCmd struct {
	Timezone string    `arg:"" help:"IANA timezone whose anchored lessons should move."`
	From     time.Time `help:"Earliest transition to consider (RFC3339). Defaults to now."`
}

func (c *ReanchorCmd) Run(ctx *Context) error {
	runCtx := context.Background()
	from := c.From
	if from.IsZero() {
		from = time.Now().UTC()
	}

	probe := service.NewDSTService(nil, nil, nil, nil, ctx.Logger, service.DSTConfig{})
	transition, err := nextTransition(probe, c.Timezone, from)
	if err != nil {
		return err
	}

	db, err := database.NewPostgres(runCtx, ctx.Config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	occurrences := repository.NewOccurrenceRepository(db)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, ctx.Logger)
	dst := service.NewDSTService(occurrences, notifications, clock.Real(), nil, ctx.Logger, service.DSTConfig{})
	report, err := dst.ReanchorForTransition(runCtx, c.Timezone, *transition)
	if err != nil {
		return err
	}
	return ctx.emit(report)
}

type transitionDetector interface {
	DetectTransitions(timezone string, year int) ([]models.DSTTransition, error)
}

func nextTransition(detector transitionDetector, timezone string, from time.Time) (*models.DSTTransition, error) {
	for year := from.Year(); year <= from.Year()+1; year++ {
		transitions, err := detector.DetectTransitions(timezone, year)
		if err != nil {
			return nil, err
		}
		for i := range transitions {
			if !transitions[i].Instant.Before(from) {
				return &transitions[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no transition for %s after %s", timezone, from.Format(time.RFC3339))
}

// TokenCmd mints a token signed with JWT_SECRET.
type TokenCmd struct {
	UserID string        `arg:"" help:"Subject user id."`
	Role   string        `default:"ADMIN" enum:"ADMIN,TEACHER,STUDENT" help:"Role claim."`
	TTL    time.Duration `name:"ttl" default:"1h" help:"Token lifetime."`
}

func (c *TokenCmd) Run(ctx *Context) error {
	tokens := service.NewTokenService(service.TokenConfig{
		Secret: ctx.Config.JWT.Secret,
		Issuer: ctx.Config.JWT.Issuer,
		Expiry: c.TTL,
	}, nil)
	token, err := tokens.IssueToken(c.UserID, models.UserRole(strings.ToUpper(c.Role)))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(ctx.Out, token)
	return err
}

// newSweepScheduler registers the configured sweeps without starting cron. A nil db yields
// services that can describe their schedule but must not be run.
func newSweepScheduler(ctx *Context, db *sqlx.DB, clk clock.Clock) (*scheduler.Scheduler, error) {
	cfg := ctx.Config
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}
	if clk == nil {
		clk = clock.Real()
	}

	var (
		generation *service.RecurrenceService
		dst        *service.DSTService
	)
	if db != nil {
		var leaseClient *redis.Client
		if cfg.Scheduler.LeaseEnabled {
			if leaseClient, err = cache.NewRedis(context.Background(), cfg.Redis); err != nil {
				return nil, err
			}
		}
		occurrences := repository.NewOccurrenceRepository(db)
		notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, ctx.Logger)
		generation = service.NewRecurrenceService(
			repository.NewRecurringPatternRepository(db),
			occurrences,
			repository.NewLeaseRepository(leaseClient, "schedulerctl", ctx.Logger),
			db,
			clk,
			nil,
			ctx.Logger,
			service.RecurrenceConfig{
				DefaultHorizonMonths: cfg.Scheduler.DefaultHorizonMonths,
				LeaseEnabled:         cfg.Scheduler.LeaseEnabled,
				LeaseTTL:             cfg.Scheduler.LeaseTTL,
			},
		)
		dst = service.NewDSTService(occurrences, notifications, clk, nil, ctx.Logger, service.DSTConfig{HeavyMonths: cfg.Scheduler.DSTHeavyMonths})
	}

	sched := scheduler.New(scheduler.Config{Location: loc}, ctx.Logger)
	if err := scheduler.RegisterSweeps(sched, cfg.Scheduler, generation, dst); err != nil {
		return nil, err
	}
	return sched, nil
}
