package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type ThreadRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChatThread) ([]*types.ChatThread, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ChatThread, error)
	GetByShareToken(dbc dbctx.Context, token string) (*types.ChatThread, error)
	ListBySpaceForUser(dbc dbctx.Context, spaceID, userID uuid.UUID, limit, offset int) ([]*types.ChatThread, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error

	// LockByID takes FOR UPDATE on the thread row; requires a transaction.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatThread, error)
	// AllocateSeq reserves n sequence numbers under the row lock and returns
	// the first reserved value. Bumps state_version and last_message_at.
	AllocateSeq(dbc dbctx.Context, id uuid.UUID, n int64) (int64, error)
	// AcquireRunSlot claims the single agent-run slot. Returns false when a
	// live run (heartbeat within staleAfter) already holds it.
	AcquireRunSlot(dbc dbctx.Context, id uuid.UUID, now time.Time, staleAfter time.Duration) (bool, error)
	HeartbeatRun(dbc dbctx.Context, id uuid.UUID, now time.Time) error
	ReleaseRunSlot(dbc dbctx.Context, id uuid.UUID) error
}

type threadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, log *logger.Logger) ThreadRepo {
	return &threadRepo{db: db, log: log.With("repo", "ThreadRepo")}
}

func (r *threadRepo) Create(dbc dbctx.Context, rows []*types.ChatThread) ([]*types.ChatThread, error) {
	if len(rows) == 0 {
		return []*types.ChatThread{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *threadRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.ChatThread, error) {
	if len(ids) == 0 {
		return []*types.ChatThread{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.ChatThread
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.ChatThread{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *threadRepo) GetByShareToken(dbc dbctx.Context, token string) (*types.ChatThread, error) {
	if token == "" {
		return nil, fmt.Errorf("missing share token")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.ChatThread
	err := txx.WithContext(dbc.Ctx).
		Model(&types.ChatThread{}).
		Where("public_share_token = ? AND public_share_enabled = TRUE", token).
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

// ListBySpaceForUser returns the user's own threads plus space-visible ones.
func (r *threadRepo) ListBySpaceForUser(dbc dbctx.Context, spaceID, userID uuid.UUID, limit, offset int) ([]*types.ChatThread, error) {
	if spaceID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("missing search_space_id or user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.ChatThread
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.ChatThread{}).
		Where("search_space_id = ?", spaceID).
		Where("created_by_id = ? OR visibility = ?", userID, "space").
		Order("last_message_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *threadRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.ChatThread{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *threadRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.ChatThread{}).Error
}

func (r *threadRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatThread, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out types.ChatThread
	if err := dbc.Tx.WithContext(dbc.Ctx).
		Raw(`SELECT * FROM chat_thread WHERE id = ? AND deleted_at IS NULL FOR UPDATE`, id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *threadRepo) AllocateSeq(dbc dbctx.Context, id uuid.UUID, n int64) (int64, error) {
	if id == uuid.Nil {
		return 0, fmt.Errorf("missing id")
	}
	if n <= 0 {
		return 0, fmt.Errorf("n must be positive")
	}
	if dbc.Tx == nil {
		return 0, fmt.Errorf("AllocateSeq requires dbc.Tx")
	}
	var row struct {
		First int64 `gorm:"column:first"`
	}
	err := dbc.Tx.WithContext(dbc.Ctx).
		Raw(`
			UPDATE chat_thread
			SET next_seq = next_seq + ?,
			    state_version = state_version + 1,
			    last_message_at = now(),
			    updated_at = now()
			WHERE id = ? AND deleted_at IS NULL
			RETURNING next_seq - ? AS first
		`, n, id, n).
		Take(&row).Error
	if err != nil {
		return 0, err
	}
	return row.First, nil
}

func (r *threadRepo) AcquireRunSlot(dbc dbctx.Context, id uuid.UUID, now time.Time, staleAfter time.Duration) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	stale := now.Add(-staleAfter)
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ChatThread{}).
		Where("id = ? AND (run_started_at IS NULL OR run_heartbeat_at IS NULL OR run_heartbeat_at < ?)", id, stale).
		Updates(map[string]interface{}{
			"run_started_at":   now,
			"run_heartbeat_at": now,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *threadRepo) HeartbeatRun(dbc dbctx.Context, id uuid.UUID, now time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.ChatThread{}).
		Where("id = ? AND run_started_at IS NOT NULL", id).
		Updates(map[string]interface{}{
			"run_heartbeat_at": now,
			"updated_at":       now,
		}).Error
}

func (r *threadRepo) ReleaseRunSlot(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.ChatThread{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"run_started_at":   nil,
			"run_heartbeat_at": nil,
			"updated_at":       time.Now().UTC(),
		}).Error
}
