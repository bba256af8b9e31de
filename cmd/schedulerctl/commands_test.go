package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/internal/scheduler"
	"github.com/noah-isme/tutor-scheduler-api/internal/service"
	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
)

func newTestContext() (*Context, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "secret"},
		Scheduler: config.SchedulerConfig{
			Timezone:       "UTC",
			GenerationCron: "15 2 * * *",
			DailyDSTCron:   "0 3 * * *",
			HourlyDSTCron:  "5 * * * *",
		},
	}
	return &Context{Config: cfg, Logger: zap.NewNop(), Out: out}, out
}

func TestCommandLineParses(t *testing.T) {
	var grammar struct {
		RunTask RunTaskCmd `cmd:"" name:"run-task"`
		Token   TokenCmd   `cmd:""`
	}
	parser, err := kong.New(&grammar)
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"run-task", "generationSweep", "--timeout", "30s"})
	require.NoError(t, err)
	assert.Equal(t, "run-task <name>", kctx.Command())
	assert.Equal(t, 30*time.Second, grammar.RunTask.Timeout)

	_, err = parser.Parse([]string{"run-task", "vacuum"})
	assert.Error(t, err)

	_, err = parser.Parse([]string{"token", "user-1", "--role", "PARENT"})
	assert.Error(t, err)
}

func TestTransitionsCommand(t *testing.T) {
	ctx, out := newTestContext()
	require.NoError(t, (&TransitionsCmd{Timezone: "Europe/London", Year: 2025}).Run(ctx))

	var transitions []models.DSTTransition
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &transitions))
	require.Len(t, transitions, 2)
	assert.Equal(t, models.TransitionForward, transitions[0].Type)
	assert.True(t, transitions[0].Instant.Equal(time.Date(2025, time.March, 30, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 60, transitions[0].OffsetAfterMinutes)
	assert.Equal(t, models.TransitionBackward, transitions[1].Type)

	assert.Error(t, (&TransitionsCmd{Timezone: "Mars/Olympus", Year: 2025}).Run(ctx))
}

func TestTasksCommand(t *testing.T) {
	ctx, out := newTestContext()
	require.NoError(t, (&TasksCmd{}).Run(ctx))

	var entries []scheduler.EntryInfo
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, service.TaskDailyDSTCheck, entries[0].Name)
	assert.Equal(t, service.TaskGenerationSweep, entries[1].Name)
	assert.Equal(t, service.TaskHourlyDSTCheck, entries[2].Name)
	assert.Equal(t, 5, entries[2].Next.Minute())
}

func TestTokenCommand(t *testing.T) {
	ctx, out := newTestContext()
	require.NoError(t, (&TokenCmd{UserID: "teacher-1", Role: "teacher", TTL: time.Hour}).Run(ctx))

	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"}, nil)
	claims, err := tokens.ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestNextTransition(t *testing.T) {
	detector := service.NewDSTService(nil, nil, nil, nil, zap.NewNop(), service.DSTConfig{})

	next, err := nextTransition(detector, "Europe/London", time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Instant.Equal(time.Date(2026, time.March, 29, 1, 0, 0, 0, time.UTC)))

	_, err = nextTransition(detector, "UTC", time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

type syncCountingCore struct {
	zapcore.Core
	syncs int
}

func (c *syncCountingCore) Sync() error {
	c.syncs++
	return nil
}

func TestExecuteFlushesLoggerOnEveryExit(t *testing.T) {
	var grammar struct {
		Transitions TransitionsCmd `cmd:""`
	}
	parser, err := kong.New(&grammar)
	require.NoError(t, err)

	ctx, _ := newTestContext()
	core := &syncCountingCore{Core: zapcore.NewNopCore()}
	ctx.Logger = zap.New(core)

	kctx, err := parser.Parse([]string{"transitions", "Europe/London", "--year", "2025"})
	require.NoError(t, err)
	stderr := &bytes.Buffer{}
	assert.Equal(t, 0, execute(kctx, ctx, stderr))
	assert.Equal(t, 1, core.syncs)
	assert.Empty(t, stderr.String())

	kctx, err = parser.Parse([]string{"transitions", "Mars/Olympus"})
	require.NoError(t, err)
	assert.Equal(t, 1, execute(kctx, ctx, stderr))
	assert.Equal(t, 2, core.syncs)
	assert.True(t, strings.HasPrefix(stderr.String(), "Error: "))
}
