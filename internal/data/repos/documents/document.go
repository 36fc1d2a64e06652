package documents

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, rows []*types.Document) ([]*types.Document, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error)
	ListBySpace(dbc dbctx.Context, spaceID uuid.UUID, docType string, states []string, limit, offset int) ([]*types.Document, int64, error)
	// UpsertByIdentity resolves the two dedup identities before insert:
	// same owner + same content_hash returns the existing row untouched;
	// same space + same unique_identifier_hash updates the existing row in
	// place and flags it for reprocessing. Returns (doc, created, changed).
	UpsertByIdentity(dbc dbctx.Context, doc *types.Document) (*types.Document, bool, bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// SetState transitions lifecycle state; failed transitions record the error.
	SetState(dbc dbctx.Context, id uuid.UUID, state, stateError string) error
	ListNeedingReindex(dbc dbctx.Context, spaceID uuid.UUID, limit int) ([]*types.Document, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
	CountBySpace(dbc dbctx.Context, spaceID uuid.UUID) (int64, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, log *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: log.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, rows []*types.Document) ([]*types.Document, error) {
	if len(rows) == 0 {
		return []*types.Document{}, nil
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

func (r *documentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error) {
	if len(ids) == 0 {
		return []*types.Document{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Document
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) ListBySpace(dbc dbctx.Context, spaceID uuid.UUID, docType string, states []string, limit, offset int) ([]*types.Document, int64, error) {
	if spaceID == uuid.Nil {
		return nil, 0, fmt.Errorf("missing search_space_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("search_space_id = ?", spaceID)
	if docType != "" {
		q = q.Where("document_type = ?", docType)
	}
	if len(states) > 0 {
		q = q.Where("state IN ?", states)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.Document
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *documentRepo) UpsertByIdentity(dbc dbctx.Context, doc *types.Document) (*types.Document, bool, bool, error) {
	if doc == nil {
		return nil, false, false, fmt.Errorf("missing document")
	}
	if doc.SearchSpaceID == uuid.Nil || doc.CreatedByID == uuid.Nil {
		return nil, false, false, fmt.Errorf("missing search_space_id or created_by_id")
	}
	if doc.ContentHash == "" || doc.UniqueIdentifierHash == "" {
		return nil, false, false, fmt.Errorf("missing content_hash or unique_identifier_hash")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}

	// Two passes at most: a concurrent insert between lookup and create
	// surfaces as ErrDuplicatedKey, after which the lookup sees the winner.
	for attempt := 0; attempt < 2; attempt++ {
		existing, changed, err := r.resolveIdentity(dbc, txx, doc)
		if err != nil {
			return nil, false, false, err
		}
		if existing != nil {
			return existing, false, changed, nil
		}

		if doc.ID == uuid.Nil {
			doc.ID = uuid.New()
		}
		if doc.State == "" {
			doc.State = documents.StatePending
		}
		err = txx.WithContext(dbc.Ctx).Create(doc).Error
		if err == nil {
			return doc, true, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, false, err
		}
	}
	return nil, false, false, fmt.Errorf("identity upsert did not converge")
}

// resolveIdentity checks the two dedup identities in order. Returns nil
// when neither matches and the caller should insert.
func (r *documentRepo) resolveIdentity(dbc dbctx.Context, txx *gorm.DB, doc *types.Document) (*types.Document, bool, error) {
	// Identity 1: same owner already ingested this exact content.
	var byContent types.Document
	err := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("created_by_id = ? AND content_hash = ?", doc.CreatedByID, doc.ContentHash).
		Limit(1).
		Find(&byContent).Error
	if err != nil {
		return nil, false, err
	}
	if byContent.ID != uuid.Nil {
		return &byContent, false, nil
	}

	// Identity 2: the same remote object re-ingested with changed content.
	var byUID types.Document
	err = txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("search_space_id = ? AND unique_identifier_hash = ?", doc.SearchSpaceID, doc.UniqueIdentifierHash).
		Limit(1).
		Find(&byUID).Error
	if err != nil {
		return nil, false, err
	}
	if byUID.ID == uuid.Nil {
		return nil, false, nil
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"title":             doc.Title,
		"source_markdown":   doc.SourceMarkdown,
		"content_hash":      doc.ContentHash,
		"document_metadata": doc.DocumentMetadata,
		"state":             documents.StatePending,
		"state_error":       "",
		"updated_at":        now,
	}
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id = ?", byUID.ID).
		Updates(updates).Error; err != nil {
		return nil, false, err
	}
	byUID.Title = doc.Title
	byUID.SourceMarkdown = doc.SourceMarkdown
	byUID.ContentHash = doc.ContentHash
	byUID.DocumentMetadata = doc.DocumentMetadata
	byUID.State = documents.StatePending
	byUID.StateError = ""
	byUID.UpdatedAt = now
	return &byUID, true, nil
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *documentRepo) SetState(dbc dbctx.Context, id uuid.UUID, state, stateError string) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":       state,
			"state_error": stateError,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *documentRepo) ListNeedingReindex(dbc dbctx.Context, spaceID uuid.UUID, limit int) ([]*types.Document, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("content_needs_reindexing = TRUE AND state = ?", documents.StateReady)
	if spaceID != uuid.Nil {
		q = q.Where("search_space_id = ?", spaceID)
	}
	var out []*types.Document
	if err := q.Order("updated_at ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Document{}).Error
}

func (r *documentRepo) CountBySpace(dbc dbctx.Context, spaceID uuid.UUID) (int64, error) {
	if spaceID == uuid.Nil {
		return 0, fmt.Errorf("missing search_space_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	err := txx.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("search_space_id = ?", spaceID).
		Count(&n).Error
	return n, err
}
