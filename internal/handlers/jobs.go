package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jobrepo "github.com/surfsense/surfsense-backend/internal/data/repos/jobs"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
)

type JobHandler struct {
	jobs jobrepo.JobRunRepo
}

func NewJobHandler(jobs jobrepo.JobRunRepo) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Get returns one job's status; jobs are only visible to their owner.
func (h *JobHandler) Get(c *gin.Context) {
	jobID, ok := PathUUID(c, "job_id")
	if !ok {
		return
	}
	rows, err := h.jobs.GetByIDs(dbctx.Context{Ctx: c.Request.Context()}, []uuid.UUID{jobID})
	if err != nil {
		RespondError(c, err)
		return
	}
	if len(rows) == 0 || rows[0].OwnerUserID != UserID(c) {
		RespondError(c, apierr.NotFound(fmt.Errorf("job %s not found", jobID)))
		return
	}
	RespondOK(c, rows[0])
}
