package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type NotificationRepo interface {
	Create(dbc dbctx.Context, rows []*types.Notification) ([]*types.Notification, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Notification, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*types.Notification, error)
	CountUnread(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	MarkRead(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID) error
	MarkAllRead(dbc dbctx.Context, userID uuid.UUID) error
	Archive(dbc dbctx.Context, userID uuid.UUID, id uuid.UUID) error
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, log *logger.Logger) NotificationRepo {
	return &notificationRepo{db: db, log: log.With("repo", "NotificationRepo")}
}

func (r *notificationRepo) Create(dbc dbctx.Context, rows []*types.Notification) ([]*types.Notification, error) {
	if len(rows) == 0 {
		return []*types.Notification{}, nil
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

func (r *notificationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Notification, error) {
	if len(ids) == 0 {
		return []*types.Notification{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Notification
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Notification{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *notificationRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*types.Notification, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Notification{}).
		Where("user_id = ? AND archived = FALSE", userID)
	if unreadOnly {
		q = q.Where("read = FALSE")
	}
	var out []*types.Notification
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *notificationRepo) CountUnread(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	err := txx.WithContext(dbc.Ctx).
		Model(&types.Notification{}).
		Where("user_id = ? AND read = FALSE AND archived = FALSE", userID).
		Count(&n).Error
	return n, err
}

func (r *notificationRepo) MarkRead(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	if len(ids) == 0 {
		return nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Notification{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Updates(map[string]interface{}{"read": true, "updated_at": time.Now().UTC()}).Error
}

func (r *notificationRepo) MarkAllRead(dbc dbctx.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Notification{}).
		Where("user_id = ? AND read = FALSE", userID).
		Updates(map[string]interface{}{"read": true, "updated_at": time.Now().UTC()}).Error
}

func (r *notificationRepo) Archive(dbc dbctx.Context, userID uuid.UUID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing user_id or id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Notification{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(map[string]interface{}{"archived": true, "updated_at": time.Now().UTC()}).Error
}
