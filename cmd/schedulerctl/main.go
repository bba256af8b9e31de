package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/alecthomas/kong"

	"github.com/noah-isme/tutor-scheduler-api/pkg/config"
	"github.com/noah-isme/tutor-scheduler-api/pkg/logger"
)

var cli struct {
	Transitions TransitionsCmd `cmd:"" help:"List the UTC offset transitions of a timezone."`
	Tasks       TasksCmd       `cmd:"" help:"List the configured sweeps and their next run."`
	RunTask     RunTaskCmd     `cmd:"" name:"run-task" help:"Run one sweep immediately against the database."`
	Reanchor    ReanchorCmd    `cmd:"" help:"Re-anchor lessons in a timezone for one transition."`
	Token       TokenCmd       `cmd:"" help:"Mint a bearer token for local testing."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("schedulerctl"),
		kong.Description("Operator tooling for the tutor scheduler sweeps."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	os.Exit(execute(kctx, &Context{Config: cfg, Logger: logr, Out: os.Stdout}, os.Stderr))
}

// execute runs the selected command and flushes the logger before the exit code is handed back.
func execute(kctx *kong.Context, appCtx *Context, stderr io.Writer) int {
	err := kctx.Run(appCtx)
	_ = appCtx.Logger.Sync()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
