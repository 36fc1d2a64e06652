package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/surfsense/surfsense-backend/internal/data/db"
	jobhandlers "github.com/surfsense/surfsense-backend/internal/jobs/handlers"
	"github.com/surfsense/surfsense-backend/internal/jobs/runtime"
	"github.com/surfsense/surfsense-backend/internal/jobs/worker"
	"github.com/surfsense/surfsense-backend/internal/observability"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/realtime"
)

// ErrConfig and ErrDependency classify startup failures so the CLI can
// map them to distinct exit codes.
var (
	ErrConfig     = errors.New("configuration error")
	ErrDependency = errors.New("dependency unavailable")
)

const (
	rateWindow         = time.Minute
	tokenJanitorPeriod = time.Hour
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Clients  Clients
	Repos    Repos
	Services Services
	Hub      *realtime.SSEHub
	Router   *gin.Engine

	otelShutdown func(context.Context) error
}

func New(log *logger.Logger) (*App, error) {
	cfg, err := LoadConfig(log)
	if err != nil {
		return nil, err
	}

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "surfsense",
		Environment: cfg.Environment,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: %v", ErrDependency, err)
	}
	gdb := pg.DB()

	clients, err := wireClients(log, cfg)
	if err != nil {
		return nil, err
	}

	repos := wireRepos(gdb, log)
	services, err := wireServices(gdb, log, cfg, repos, clients)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewSSEHub(log)
	router := wireRouter(log, cfg, gdb, repos, clients, services, hub)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           gdb,
		Clients:      clients,
		Repos:        repos,
		Services:     services,
		Hub:          hub,
		Router:       router,
		otelShutdown: otelShutdown,
	}, nil
}

// RunServe starts the HTTP API. The bus forwarder feeds the in-process
// SSE hub, so events published by worker processes reach this instance's
// connected clients.
func (a *App) RunServe(ctx context.Context) error {
	if err := a.Clients.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("%w: sse forwarder: %v", ErrDependency, err)
	}
	go a.tokenJanitor(ctx)

	a.Log.Info("http server listening", "port", a.Cfg.Port)
	return a.Router.Run(":" + a.Cfg.Port)
}

// RunWorker runs the job worker pool until the context ends.
func (a *App) RunWorker(ctx context.Context) error {
	registry := runtime.NewRegistry()
	err := jobhandlers.RegisterAll(registry,
		jobhandlers.NewConnectorIndexHandler(a.Services.Coordinator, a.Log),
		jobhandlers.NewDocumentProcessHandler(a.Services.Processor, a.Repos.Documents, a.Services.Notify, a.Log),
		jobhandlers.NewDocumentReindexHandler(a.Services.Processor, a.Repos.Documents, a.Log),
		jobhandlers.NewPodcastGenerateHandler(a.Repos.Podcasts, a.Repos.Threads, a.Repos.Messages,
			a.Clients.OpenAI, a.Clients.Bucket, a.Services.Notify, a.Services.Guard, a.Log),
	)
	if err != nil {
		return fmt.Errorf("%w: register job handlers: %v", ErrConfig, err)
	}

	w := worker.NewWorker(a.DB, a.Log, a.Repos.Jobs, registry, a.Clients.Bus)
	w.Start(ctx)
	<-ctx.Done()
	return nil
}

// RunScheduler runs the periodic connector dispatcher until the context
// ends.
func (a *App) RunScheduler(ctx context.Context) error {
	a.Services.Scheduler.Start(ctx)
	<-ctx.Done()
	return nil
}

// Migrate applies the schema and search indexes, then exits.
func (a *App) Migrate() error {
	if err := db.AutoMigrateAll(a.DB); err != nil {
		return fmt.Errorf("%w: automigrate: %v", ErrDependency, err)
	}
	a.Log.Info("migrations applied")
	return nil
}

// tokenJanitor sweeps expired refresh tokens. Losing a sweep is harmless;
// expired rows are inert until deleted.
func (a *App) tokenJanitor(ctx context.Context) {
	ticker := time.NewTicker(tokenJanitorPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Services.Auth.PurgeExpired(ctx)
			if err != nil {
				a.Log.Warn("refresh token sweep failed", "error", err)
				continue
			}
			if n > 0 {
				a.Log.Info("purged expired refresh tokens", "count", n)
			}
		}
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Clients.Bus != nil {
		_ = a.Clients.Bus.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
