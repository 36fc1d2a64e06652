package chat

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type CheckpointRepo interface {
	// Append writes the next checkpoint record. (thread_id, step_no) is
	// unique, so two racing runs cannot both commit the same step.
	Append(dbc dbctx.Context, cp *types.AgentCheckpoint) (*types.AgentCheckpoint, error)
	// Latest returns the newest checkpoint for the thread, nil when the log
	// is empty.
	Latest(dbc dbctx.Context, threadID uuid.UUID) (*types.AgentCheckpoint, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.AgentCheckpoint, error)
	// DeleteByThread clears the log, done when a run completes cleanly.
	DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error
}

type checkpointRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCheckpointRepo(db *gorm.DB, log *logger.Logger) CheckpointRepo {
	return &checkpointRepo{db: db, log: log.With("repo", "CheckpointRepo")}
}

func (r *checkpointRepo) Append(dbc dbctx.Context, cp *types.AgentCheckpoint) (*types.AgentCheckpoint, error) {
	if cp == nil {
		return nil, fmt.Errorf("missing checkpoint")
	}
	if cp.ThreadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if err := txx.WithContext(dbc.Ctx).Create(cp).Error; err != nil {
		return nil, err
	}
	return cp, nil
}

func (r *checkpointRepo) Latest(dbc dbctx.Context, threadID uuid.UUID) (*types.AgentCheckpoint, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.AgentCheckpoint
	err := txx.WithContext(dbc.Ctx).
		Model(&types.AgentCheckpoint{}).
		Where("thread_id = ?", threadID).
		Order("step_no DESC").
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *checkpointRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.AgentCheckpoint, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.AgentCheckpoint
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.AgentCheckpoint{}).
		Where("thread_id = ?", threadID).
		Order("step_no ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *checkpointRepo) DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error {
	if threadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("thread_id = ?", threadID).
		Delete(&types.AgentCheckpoint{}).Error
}
