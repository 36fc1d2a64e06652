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

type MembershipRepo interface {
	Create(dbc dbctx.Context, rows []*types.Membership) ([]*types.Membership, error)
	GetForUserSpace(dbc dbctx.Context, userID, spaceID uuid.UUID) (*types.Membership, error)
	ListBySpace(dbc dbctx.Context, spaceID uuid.UUID) ([]*types.Membership, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type membershipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMembershipRepo(db *gorm.DB, log *logger.Logger) MembershipRepo {
	return &membershipRepo{db: db, log: log.With("repo", "MembershipRepo")}
}

func (r *membershipRepo) Create(dbc dbctx.Context, rows []*types.Membership) ([]*types.Membership, error) {
	if len(rows) == 0 {
		return []*types.Membership{}, nil
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

func (r *membershipRepo) GetForUserSpace(dbc dbctx.Context, userID, spaceID uuid.UUID) (*types.Membership, error) {
	if userID == uuid.Nil || spaceID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id or search_space_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Membership
	err := txx.WithContext(dbc.Ctx).
		Model(&types.Membership{}).
		Where("user_id = ? AND search_space_id = ?", userID, spaceID).
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

func (r *membershipRepo) ListBySpace(dbc dbctx.Context, spaceID uuid.UUID) ([]*types.Membership, error) {
	if spaceID == uuid.Nil {
		return nil, fmt.Errorf("missing search_space_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Membership
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Membership{}).
		Where("search_space_id = ?", spaceID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *membershipRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Membership{}).Error
}

type InviteCodeRepo interface {
	Create(dbc dbctx.Context, rows []*types.InviteCode) ([]*types.InviteCode, error)
	GetByCode(dbc dbctx.Context, code string) (*types.InviteCode, error)
	// ConsumeUse increments uses under the row lock; returns false when the
	// invite is expired or exhausted.
	ConsumeUse(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error)
}

type inviteCodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInviteCodeRepo(db *gorm.DB, log *logger.Logger) InviteCodeRepo {
	return &inviteCodeRepo{db: db, log: log.With("repo", "InviteCodeRepo")}
}

func (r *inviteCodeRepo) Create(dbc dbctx.Context, rows []*types.InviteCode) ([]*types.InviteCode, error) {
	if len(rows) == 0 {
		return []*types.InviteCode{}, nil
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

func (r *inviteCodeRepo) GetByCode(dbc dbctx.Context, code string) (*types.InviteCode, error) {
	if code == "" {
		return nil, fmt.Errorf("missing code")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.InviteCode
	err := txx.WithContext(dbc.Ctx).
		Model(&types.InviteCode{}).
		Where("code = ?", code).
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

func (r *inviteCodeRepo) ConsumeUse(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.InviteCode{}).
		Where("id = ? AND (expires_at IS NULL OR expires_at > ?) AND (max_uses = 0 OR uses < max_uses)", id, now).
		Updates(map[string]interface{}{
			"uses":       gorm.Expr("uses + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
