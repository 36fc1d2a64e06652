package jobs

import (
	"context"
	"time"

	connrepo "github.com/surfsense/surfsense-backend/internal/data/repos/connectors"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/redisx"
)

const (
	schedulerTick     = time.Minute
	schedulerLockKey  = "surfsense:scheduler:tick"
	schedulerLockTTL  = 55 * time.Second
	schedulerMaxBatch = 100
)

// Scheduler dispatches periodic connector index runs. Any number of
// instances may run the loop; the distributed lock ensures one tick does
// the dispatching, so a connector is never enqueued twice per tick.
type Scheduler struct {
	connectors connrepo.ConnectorRepo
	enqueuer   *Enqueuer
	locker     *redisx.Locker
	log        *logger.Logger
}

func NewScheduler(connectors connrepo.ConnectorRepo, enqueuer *Enqueuer, locker *redisx.Locker, log *logger.Logger) *Scheduler {
	return &Scheduler{
		connectors: connectors,
		enqueuer:   enqueuer,
		locker:     locker,
		log:        log.With("component", "Scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()
	s.log.Info("Scheduler started", "tick", schedulerTick.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx, time.Now()); err != nil {
				s.log.Warn("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick runs one dispatch pass. Exposed for manual runs and tests.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	lock, ok, err := s.locker.Acquire(ctx, schedulerLockKey, schedulerLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		// Another instance is dispatching this tick.
		return nil
	}
	defer func() { _ = lock.Release(ctx) }()

	return s.dispatchDue(ctx, now)
}

func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) error {
	dbc := dbctx.Context{Ctx: ctx}
	due, err := s.connectors.DueForIndexing(dbc, now, schedulerMaxBatch)
	if err != nil {
		return err
	}
	for _, conn := range due {
		// Advancing next_scheduled_at before the run keeps the connector
		// out of the next tick even if the job sits queued for a while.
		if err := s.connectors.MarkRunStarted(dbc, conn.ID, now); err != nil {
			s.log.Warn("mark run started failed", "connector_id", conn.ID, "error", err)
			continue
		}
		id := conn.ID
		job, err := s.enqueuer.Enqueue(ctx, conn.UserID, domjobs.TypeConnectorIndex, "connector", &id, map[string]any{
			"connector_id": conn.ID.String(),
		})
		if err != nil {
			s.log.Warn("enqueue connector index failed", "connector_id", conn.ID, "error", err)
			continue
		}
		if job != nil {
			s.log.Info("connector index dispatched",
				"connector_id", conn.ID,
				"connector_type", conn.ConnectorType,
				"job_id", job.ID,
			)
		}
	}
	return nil
}
