package user

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type RefreshTokenRepo interface {
	Create(dbc dbctx.Context, rows []*types.RefreshToken) ([]*types.RefreshToken, error)
	GetByTokenHash(dbc dbctx.Context, tokenHash string) (*types.RefreshToken, error)
	MarkRotated(dbc dbctx.Context, id uuid.UUID) error
	RevokeFamily(dbc dbctx.Context, familyID uuid.UUID) error
	RevokeAllForUser(dbc dbctx.Context, userID uuid.UUID) error
	DeleteExpired(dbc dbctx.Context, before time.Time) (int64, error)
}

type refreshTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRefreshTokenRepo(db *gorm.DB, log *logger.Logger) RefreshTokenRepo {
	return &refreshTokenRepo{db: db, log: log.With("repo", "RefreshTokenRepo")}
}

func (r *refreshTokenRepo) Create(dbc dbctx.Context, rows []*types.RefreshToken) ([]*types.RefreshToken, error) {
	if len(rows) == 0 {
		return []*types.RefreshToken{}, nil
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

func (r *refreshTokenRepo) GetByTokenHash(dbc dbctx.Context, tokenHash string) (*types.RefreshToken, error) {
	if tokenHash == "" {
		return nil, fmt.Errorf("missing token hash")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.RefreshToken
	err := txx.WithContext(dbc.Ctx).
		Model(&types.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
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

func (r *refreshTokenRepo) MarkRotated(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	return txx.WithContext(dbc.Ctx).
		Model(&types.RefreshToken{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"rotated_at": now, "updated_at": now}).Error
}

func (r *refreshTokenRepo) RevokeFamily(dbc dbctx.Context, familyID uuid.UUID) error {
	if familyID == uuid.Nil {
		return fmt.Errorf("missing family id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	return txx.WithContext(dbc.Ctx).
		Model(&types.RefreshToken{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Updates(map[string]interface{}{"revoked_at": now, "updated_at": now}).Error
}

func (r *refreshTokenRepo) RevokeAllForUser(dbc dbctx.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("missing user id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	now := time.Now().UTC()
	return txx.WithContext(dbc.Ctx).
		Model(&types.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Updates(map[string]interface{}{"revoked_at": now, "updated_at": now}).Error
}

func (r *refreshTokenRepo) DeleteExpired(dbc dbctx.Context, before time.Time) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Where("expires_at < ?", before).
		Delete(&types.RefreshToken{})
	return res.RowsAffected, res.Error
}
