package chat

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type CommentRepo interface {
	Create(dbc dbctx.Context, rows []*types.Comment) ([]*types.Comment, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Comment, error)
	// ListByMessage returns the flat comment set for a message in creation
	// order; callers assemble the tree from parent_id.
	ListByMessage(dbc dbctx.Context, messageID uuid.UUID) ([]*types.Comment, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Comment, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type commentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCommentRepo(db *gorm.DB, log *logger.Logger) CommentRepo {
	return &commentRepo{db: db, log: log.With("repo", "CommentRepo")}
}

func (r *commentRepo) Create(dbc dbctx.Context, rows []*types.Comment) ([]*types.Comment, error) {
	if len(rows) == 0 {
		return []*types.Comment{}, nil
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

func (r *commentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Comment, error) {
	if len(ids) == 0 {
		return []*types.Comment{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Comment
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Comment{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *commentRepo) ListByMessage(dbc dbctx.Context, messageID uuid.UUID) ([]*types.Comment, error) {
	if messageID == uuid.Nil {
		return nil, fmt.Errorf("missing message_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Comment
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Comment{}).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *commentRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]*types.Comment, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Comment
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Comment{}).
		Where("thread_id = ?", threadID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *commentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Comment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *commentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Comment{}).Error
}

type MentionRepo interface {
	Create(dbc dbctx.Context, rows []*types.Mention) ([]*types.Mention, error)
	ListByComment(dbc dbctx.Context, commentID uuid.UUID) ([]*types.Mention, error)
}

type mentionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMentionRepo(db *gorm.DB, log *logger.Logger) MentionRepo {
	return &mentionRepo{db: db, log: log.With("repo", "MentionRepo")}
}

func (r *mentionRepo) Create(dbc dbctx.Context, rows []*types.Mention) ([]*types.Mention, error) {
	if len(rows) == 0 {
		return []*types.Mention{}, nil
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

func (r *mentionRepo) ListByComment(dbc dbctx.Context, commentID uuid.UUID) ([]*types.Mention, error) {
	if commentID == uuid.Nil {
		return nil, fmt.Errorf("missing comment_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Mention
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Mention{}).
		Where("comment_id = ?", commentID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
