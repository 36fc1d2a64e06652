package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/surfsense/surfsense-backend/internal/app"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const usage = `usage: surfsense <command>

commands:
  serve       run the HTTP API server
  worker      run the background job worker pool
  scheduler   run the periodic connector scheduler
  migrate     apply database migrations and exit
  seed-docs   load markdown files from a directory (default ./seed)
`

const (
	exitOK         = 0
	exitConfig     = 1
	exitDependency = 2
	exitCrash      = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	// Missing .env is fine; production injects real environment.
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return exitConfig
	}
	defer log.Sync()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return exitConfig
	}
	command := os.Args[1]

	a, err := app.New(log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return exitCode(err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = a.RunServe(ctx)
	case "worker":
		err = a.RunWorker(ctx)
	case "scheduler":
		err = a.RunScheduler(ctx)
	case "migrate":
		err = a.Migrate()
	case "seed-docs":
		dir := "./seed"
		if len(os.Args) > 2 {
			dir = os.Args[2]
		}
		if err = a.Migrate(); err == nil {
			err = a.SeedDocs(ctx, dir)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return exitConfig
	}

	if err != nil {
		log.Error("command failed", "command", command, "error", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, app.ErrConfig):
		return exitConfig
	case errors.Is(err, app.ErrDependency):
		return exitDependency
	default:
		return exitCrash
	}
}
