package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/surfsense/surfsense-backend/internal/data/repos/jobs"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/realtime"
	"github.com/surfsense/surfsense-backend/internal/realtime/bus"
)

// Context is the execution handle for one claimed job run. It wraps the DB
// handle, the mutable job_run row, and the only sanctioned ways to report
// progress or terminate execution. Handlers never touch job_run directly.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    jobrepo.JobRunRepo
	Bus     bus.Bus
	payload map[string]any
}

// NewContext eagerly decodes the payload so handlers read inputs via
// Payload()/PayloadUUID(). Decode failures leave an empty map; handlers
// validate the fields they need.
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo jobrepo.JobRunRepo, b bus.Bus) *Context {
	c := &Context{
		Ctx:  ctx,
		DB:   db,
		Job:  job,
		Repo: repo,
		Bus:  b,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Progress persists the stage plus a heartbeat and tells the owner's
// clients. Non-terminal.
func (c *Context) Progress(stage string) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID,
		[]string{domjobs.StatusDone, domjobs.StatusFailed},
		map[string]interface{}{
			"stage":        stage,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if !ok {
		return
	}
	c.Job.Stage = stage
	c.Job.HeartbeatAt = &now
	c.publishStatus(domjobs.StatusRunning, stage, "")
}

// Fail marks the run terminally failed for this attempt. The claim query
// re-queues it until attempts reach the worker's maximum.
func (c *Context) Fail(stage string, err error) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID,
		[]string{domjobs.StatusDone},
		map[string]interface{}{
			"status":        domjobs.StatusFailed,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
	if !ok {
		return
	}
	c.Job.Status = domjobs.StatusFailed
	c.Job.Stage = stage
	c.Job.Error = msg
	c.Job.LastErrorAt = &now
	c.Job.LockedAt = nil
	c.publishStatus(domjobs.StatusFailed, stage, msg)
}

// Succeed marks the run done and stores the result payload.
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err == nil {
			res = datatypes.JSON(b)
		}
	}
	ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID,
		[]string{domjobs.StatusDone},
		map[string]interface{}{
			"status":       domjobs.StatusDone,
			"stage":        finalStage,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if !ok {
		return
	}
	c.Job.Status = domjobs.StatusDone
	c.Job.Stage = finalStage
	c.Job.Error = ""
	c.Job.Result = res
	c.Job.LockedAt = nil
	c.publishStatus(domjobs.StatusDone, finalStage, "")
}

// Heartbeat extends the claim while a long handler holds the job.
func (c *Context) Heartbeat() {
	if c == nil || c.Repo == nil || c.Job == nil {
		return
	}
	_ = c.Repo.Heartbeat(dbctx.Context{Ctx: c.Ctx}, c.Job.ID)
}

func (c *Context) publishStatus(status, stage, errMsg string) {
	if c.Bus == nil || c.Job == nil {
		return
	}
	data := map[string]any{
		"job_id":   c.Job.ID.String(),
		"job_type": c.Job.JobType,
		"status":   status,
		"stage":    stage,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	_ = c.Bus.Publish(c.Ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(c.Job.OwnerUserID.String()),
		Event:   realtime.SSEEventJobStatus,
		Data:    data,
	})
}
