// Package scheduler registers the named background sweeps on cron schedules.
//
// Execution belongs to the services; the scheduler only decides when a task
// fires and keeps a task from overlapping with itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/dto"
)

var (
	// ErrUnknownTask is returned when RunTask is given an unregistered name.
	ErrUnknownTask = errors.New("unknown task")
	// ErrTaskRunning is returned when a task is triggered while a previous run is still active.
	ErrTaskRunning = errors.New("task already running")
)

// Task is a sweep executed by the scheduler.
type Task func(ctx context.Context) (*dto.SweepReport, error)

// Config tunes the scheduler.
type Config struct {
	Location *time.Location
	Timeout  time.Duration // bounds a single run, zero means unbounded
}

// EntryInfo describes a registered task.
type EntryInfo struct {
	Name    string           `json:"name" yaml:"name"`
	Spec    string           `json:"spec" yaml:"spec"`
	Next    time.Time        `json:"next" yaml:"next"`
	LastRun time.Time        `json:"lastRun,omitempty" yaml:"lastRun,omitempty"`
	LastErr string           `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	Last    *dto.SweepReport `json:"lastReport,omitempty" yaml:"lastReport,omitempty"`
}

type taskEntry struct {
	info    EntryInfo
	entryID cron.EntryID
	running bool
	task    Task
}

// Scheduler owns the cron runner and the task registry.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	loc     *time.Location
	timeout time.Duration

	mu    sync.Mutex
	tasks map[string]*taskEntry
	base  context.Context
	stop  context.CancelFunc
}

// New constructs a scheduler firing in cfg.Location (UTC when nil).
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	base, stop := context.WithCancel(context.Background())
	adapter := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(adapter), cron.WithChain(cron.Recover(adapter))),
		logger:  logger,
		loc:     loc,
		timeout: cfg.Timeout,
		tasks:   make(map[string]*taskEntry),
		base:    base,
		stop:    stop,
	}
}

// Register adds a task under name firing on the standard five-field cron spec.
func (s *Scheduler) Register(name, spec string, task Task) error {
	if name == "" || task == nil {
		return fmt.Errorf("register task: name and task are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("register task %s: already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunTask(s.base, name); err != nil && !errors.Is(err, ErrTaskRunning) {
			s.logger.Error("scheduled task failed", zap.String("task", name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register task %s: %w", name, err)
	}
	s.tasks[name] = &taskEntry{info: EntryInfo{Name: name, Spec: spec}, entryID: id, task: task}
	return nil
}

// RunTask executes a registered task immediately and returns its report.
func (s *Scheduler) RunTask(ctx context.Context, name string) (*dto.SweepReport, error) {
	s.mu.Lock()
	entry, ok := s.tasks[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if entry.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskRunning, name)
	}
	entry.running = true
	task := entry.task
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	report, err := task(ctx)

	s.mu.Lock()
	entry.running = false
	entry.info.LastRun = started.UTC()
	entry.info.Last = report
	entry.info.LastErr = ""
	if err != nil {
		entry.info.LastErr = err.Error()
	}
	s.mu.Unlock()

	fields := []zap.Field{zap.String("task", name), zap.Duration("duration", time.Since(started))}
	if report != nil {
		fields = append(fields, zap.Int("processed", report.Processed), zap.Int("failed", report.Failed))
	}
	if err != nil {
		s.logger.Warn("task finished with error", append(fields, zap.Error(err))...)
		return report, err
	}
	s.logger.Info("task finished", fields...)
	return report, nil
}

// Entries lists registered tasks sorted by name. Next is computed from the
// schedule when the runner has not been started.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().In(s.loc)
	out := make([]EntryInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		info := entry.info
		cronEntry := s.cron.Entry(entry.entryID)
		info.Next = cronEntry.Next
		if info.Next.IsZero() && cronEntry.Schedule != nil {
			info.Next = cronEntry.Schedule.Next(now)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins firing tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.Entries())))
}

// Stop halts the cron runner and cancels running tasks, waiting for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
