package memory

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type MemoryRepo interface {
	Create(dbc dbctx.Context, rows []*types.UserMemory) ([]*types.UserMemory, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.UserMemory, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID, spaceID *uuid.UUID, category string) ([]*types.UserMemory, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	// SearchSimilar scores the user's memories against the query embedding
	// and returns the top matches.
	SearchSimilar(dbc dbctx.Context, userID uuid.UUID, spaceID *uuid.UUID, qEmb []float32, limit int) ([]*types.UserMemory, error)
}

type memoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoryRepo(db *gorm.DB, log *logger.Logger) MemoryRepo {
	return &memoryRepo{db: db, log: log.With("repo", "MemoryRepo")}
}

func (r *memoryRepo) Create(dbc dbctx.Context, rows []*types.UserMemory) ([]*types.UserMemory, error) {
	if len(rows) == 0 {
		return []*types.UserMemory{}, nil
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

func (r *memoryRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.UserMemory, error) {
	if len(ids) == 0 {
		return []*types.UserMemory{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.UserMemory
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.UserMemory{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *memoryRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID, spaceID *uuid.UUID, category string) ([]*types.UserMemory, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.UserMemory{}).
		Where("user_id = ?", userID)
	if spaceID != nil && *spaceID != uuid.Nil {
		q = q.Where("search_space_id IS NULL OR search_space_id = ?", *spaceID)
	} else {
		q = q.Where("search_space_id IS NULL")
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var out []*types.UserMemory
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *memoryRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.UserMemory{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *memoryRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.UserMemory{}).Error
}

func (r *memoryRepo) SearchSimilar(dbc dbctx.Context, userID uuid.UUID, spaceID *uuid.UUID, qEmb []float32, limit int) ([]*types.UserMemory, error) {
	if len(qEmb) == 0 || limit <= 0 {
		return nil, nil
	}
	rows, err := r.ListForUser(dbc, userID, spaceID, "")
	if err != nil {
		return nil, err
	}
	type scored struct {
		mem   *types.UserMemory
		score float64
	}
	scoredRows := make([]scored, 0, len(rows))
	for _, m := range rows {
		emb, err := docrepo.ParseEmbeddingJSON(m.Embedding)
		if err != nil || len(emb) != len(qEmb) {
			continue
		}
		scoredRows = append(scoredRows, scored{mem: m, score: docrepo.Cosine(qEmb, emb)})
	}
	sort.Slice(scoredRows, func(i, j int) bool { return scoredRows[i].score > scoredRows[j].score })
	if len(scoredRows) > limit {
		scoredRows = scoredRows[:limit]
	}
	out := make([]*types.UserMemory, 0, len(scoredRows))
	for _, s := range scoredRows {
		out = append(out, s.mem)
	}
	return out, nil
}
