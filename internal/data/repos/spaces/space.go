package spaces

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type SearchSpaceRepo interface {
	Create(dbc dbctx.Context, rows []*types.SearchSpace) ([]*types.SearchSpace, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SearchSpace, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.SearchSpace, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type searchSpaceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSearchSpaceRepo(db *gorm.DB, log *logger.Logger) SearchSpaceRepo {
	return &searchSpaceRepo{db: db, log: log.With("repo", "SearchSpaceRepo")}
}

func (r *searchSpaceRepo) Create(dbc dbctx.Context, rows []*types.SearchSpace) ([]*types.SearchSpace, error) {
	if len(rows) == 0 {
		return []*types.SearchSpace{}, nil
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

func (r *searchSpaceRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.SearchSpace, error) {
	if len(ids) == 0 {
		return []*types.SearchSpace{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SearchSpace
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.SearchSpace{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListForUser returns spaces the user owns or is a member of.
func (r *searchSpaceRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.SearchSpace, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SearchSpace
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.SearchSpace{}).
		Where(`owner_id = ? OR id IN (
			SELECT search_space_id FROM membership
			WHERE user_id = ? AND deleted_at IS NULL
		)`, userID, userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *searchSpaceRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.SearchSpace{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *searchSpaceRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.SearchSpace{}).Error
}
