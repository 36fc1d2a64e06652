package documents

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type ChunkRepo interface {
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Chunk, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Chunk, error)
	// ReplaceForDocument swaps the full chunk set of a document atomically.
	// Readers never observe a partially rewritten document.
	ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*types.Chunk) error
	DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error
	SearchDense(dbc dbctx.Context, spaceID uuid.UUID, qEmb []float32, limit int) ([]ChunkHit, error)
	SearchLexical(dbc dbctx.Context, spaceID uuid.UUID, query string, limit int) ([]ChunkHit, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, log *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: log.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Chunk, error) {
	if len(ids) == 0 {
		return []*types.Chunk{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Chunk
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Chunk, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("missing document_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Chunk
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Where("document_id = ?", documentID).
		Order("order_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*types.Chunk) error {
	if documentID == uuid.Nil {
		return fmt.Errorf("missing document_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	replace := func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&types.Chunk{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i, ch := range rows {
			if ch.ID == uuid.Nil {
				ch.ID = uuid.New()
			}
			ch.DocumentID = documentID
			ch.OrderIndex = i
		}
		return tx.CreateInBatches(&rows, 200).Error
	}
	if dbc.Tx != nil {
		return replace(txx.WithContext(dbc.Ctx))
	}
	return txx.WithContext(dbc.Ctx).Transaction(replace)
}

func (r *chunkRepo) DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error {
	if documentID == uuid.Nil {
		return fmt.Errorf("missing document_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Delete(&types.Chunk{}).Error
}
