package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	jobrepo "github.com/surfsense/surfsense-backend/internal/data/repos/jobs"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// Enqueuer creates job_run rows. Per (owner, type, entity) at most one
// runnable job exists at a time; duplicate enqueues collapse.
type Enqueuer struct {
	repo jobrepo.JobRunRepo
	log  *logger.Logger
}

func NewEnqueuer(repo jobrepo.JobRunRepo, log *logger.Logger) *Enqueuer {
	return &Enqueuer{repo: repo, log: log.With("component", "JobEnqueuer")}
}

// Enqueue queues a job unless an equivalent one is already runnable.
// Returns the created row, or nil when collapsed into an existing job.
func (e *Enqueuer) Enqueue(ctx context.Context, ownerUserID uuid.UUID, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner user id")
	}
	dbc := dbctx.Context{Ctx: ctx}

	exists, err := e.repo.ExistsRunnable(dbc, ownerUserID, jobType, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if exists {
		e.log.Debug("job already runnable, skipping enqueue",
			"job_type", jobType, "entity_type", entityType)
		return nil, nil
	}

	payloadJSON := datatypes.JSON([]byte("{}"))
	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode job payload: %w", err)
		}
		payloadJSON = datatypes.JSON(raw)
	}

	rows, err := e.repo.Create(dbc, []*types.JobRun{{
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      domjobs.StatusQueued,
		Stage:       "queued",
		Payload:     payloadJSON,
	}})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}
