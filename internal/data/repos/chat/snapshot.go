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

type SnapshotRepo interface {
	Create(dbc dbctx.Context, rows []*types.PublicChatSnapshot) ([]*types.PublicChatSnapshot, error)
	GetByShareToken(dbc dbctx.Context, token string) (*types.PublicChatSnapshot, error)
	// LatestForThread returns the most recent snapshot, nil when none exists.
	LatestForThread(dbc dbctx.Context, threadID uuid.UUID) (*types.PublicChatSnapshot, error)
	DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error
}

type snapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSnapshotRepo(db *gorm.DB, log *logger.Logger) SnapshotRepo {
	return &snapshotRepo{db: db, log: log.With("repo", "SnapshotRepo")}
}

func (r *snapshotRepo) Create(dbc dbctx.Context, rows []*types.PublicChatSnapshot) ([]*types.PublicChatSnapshot, error) {
	if len(rows) == 0 {
		return []*types.PublicChatSnapshot{}, nil
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

func (r *snapshotRepo) GetByShareToken(dbc dbctx.Context, token string) (*types.PublicChatSnapshot, error) {
	if token == "" {
		return nil, fmt.Errorf("missing share token")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.PublicChatSnapshot
	err := txx.WithContext(dbc.Ctx).
		Model(&types.PublicChatSnapshot{}).
		Where("share_token = ?", token).
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

func (r *snapshotRepo) LatestForThread(dbc dbctx.Context, threadID uuid.UUID) (*types.PublicChatSnapshot, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.PublicChatSnapshot
	err := txx.WithContext(dbc.Ctx).
		Model(&types.PublicChatSnapshot{}).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
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

func (r *snapshotRepo) DeleteByThread(dbc dbctx.Context, threadID uuid.UUID) error {
	if threadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("thread_id = ?", threadID).
		Delete(&types.PublicChatSnapshot{}).Error
}

type PodcastRepo interface {
	Create(dbc dbctx.Context, rows []*types.Podcast) ([]*types.Podcast, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Podcast, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Podcast, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type podcastRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPodcastRepo(db *gorm.DB, log *logger.Logger) PodcastRepo {
	return &podcastRepo{db: db, log: log.With("repo", "PodcastRepo")}
}

func (r *podcastRepo) Create(dbc dbctx.Context, rows []*types.Podcast) ([]*types.Podcast, error) {
	if len(rows) == 0 {
		return []*types.Podcast{}, nil
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

func (r *podcastRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Podcast, error) {
	if len(ids) == 0 {
		return []*types.Podcast{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Podcast
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Podcast{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *podcastRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Podcast, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Podcast
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Podcast{}).
		Where("thread_id = ?", threadID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *podcastRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Podcast{}).
		Where("id = ?", id).
		Updates(updates).Error
}
