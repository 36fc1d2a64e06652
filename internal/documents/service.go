package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domdocs "github.com/surfsense/surfsense-backend/internal/domain/documents"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	domspaces "github.com/surfsense/surfsense-backend/internal/domain/spaces"
	"github.com/surfsense/surfsense-backend/internal/ingest"
	"github.com/surfsense/surfsense-backend/internal/jobs"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/platform/bucket"
	"github.com/surfsense/surfsense-backend/internal/platform/qdrant"
	"github.com/surfsense/surfsense-backend/internal/quota"
	"github.com/surfsense/surfsense-backend/internal/retrieval"
	"github.com/surfsense/surfsense-backend/internal/spaces"
)

const maxUploadBytes = 20 << 20

// Service is the user-facing document surface: create, upload, list,
// search, delete, reindex. Connector-sourced documents arrive through the
// ingestion coordinator instead.
type Service struct {
	db        *gorm.DB
	log       *logger.Logger
	documents docrepo.DocumentRepo
	chunks    docrepo.ChunkRepo
	spaces    *spaces.Service
	guard     *quota.Guard
	enqueuer  *jobs.Enqueuer
	retriever *retrieval.Retriever
	store     bucket.Service
	vectors   qdrant.VectorStore
}

func NewService(
	db *gorm.DB,
	log *logger.Logger,
	documents docrepo.DocumentRepo,
	chunks docrepo.ChunkRepo,
	spacesSvc *spaces.Service,
	guard *quota.Guard,
	enqueuer *jobs.Enqueuer,
	retriever *retrieval.Retriever,
	store bucket.Service,
	vectors qdrant.VectorStore,
) *Service {
	return &Service{
		db:        db,
		log:       log.With("service", "DocumentService"),
		documents: documents,
		chunks:    chunks,
		spaces:    spacesSvc,
		guard:     guard,
		enqueuer:  enqueuer,
		retriever: retriever,
		store:     store,
		vectors:   vectors,
	}
}

// CreateNote ingests editor-written markdown as a note document.
func (s *Service) CreateNote(ctx context.Context, userID, spaceID uuid.UUID, title, markdown string) (*types.Document, error) {
	if strings.TrimSpace(title) == "" {
		return nil, apierr.Validation(fmt.Errorf("title required"))
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, apierr.Validation(fmt.Errorf("content required"))
	}
	row := &types.Document{
		SearchSpaceID:        spaceID,
		Title:                strings.TrimSpace(title),
		DocumentType:         domdocs.TypeNote,
		SourceMarkdown:       markdown,
		ContentHash:          ingest.ContentHash(markdown),
		UniqueIdentifierHash: ingest.UniqueIdentifierHash(domdocs.TypeNote, uuid.NewString()),
		State:                domdocs.StatePending,
		CreatedByID:          userID,
	}
	return s.persist(ctx, userID, spaceID, row)
}

// UploadFile stores the raw upload in the bucket and ingests its text.
// HTML uploads are converted to markdown; everything else is treated as
// plain text or markdown already.
func (s *Service) UploadFile(ctx context.Context, userID, spaceID uuid.UUID, filename, contentType string, data []byte) (*types.Document, error) {
	if len(data) == 0 {
		return nil, apierr.Validation(fmt.Errorf("empty file"))
	}
	if len(data) > maxUploadBytes {
		return nil, apierr.Validation(fmt.Errorf("file exceeds %d MB limit", maxUploadBytes>>20))
	}
	if err := s.spaces.Require(ctx, userID, spaceID, domspaces.PermDocumentsCreate); err != nil {
		return nil, err
	}

	markdown := string(data)
	if strings.Contains(contentType, "html") || ingest.LooksLikeHTML(markdown) {
		md, err := ingest.HTMLToMarkdown(markdown)
		if err != nil {
			return nil, apierr.Validation(fmt.Errorf("convert html: %w", err))
		}
		markdown = md
	}
	markdown = ingest.NormalizeContent(markdown)
	if markdown == "" {
		return nil, apierr.Validation(fmt.Errorf("no extractable text in %s", filename))
	}

	key := fmt.Sprintf("%s/%s/%s", spaceID, uuid.NewString(), filename)
	if s.store != nil {
		if err := s.store.Upload(ctx, bucket.CategoryUpload, key, contentType, bytes.NewReader(data)); err != nil {
			s.log.Warn("raw upload store failed", "filename", filename, "error", err)
			key = ""
		}
	} else {
		key = ""
	}

	meta, _ := json.Marshal(map[string]any{
		"filename":     filename,
		"content_type": contentType,
		"file_ref":     key,
		"size_bytes":   len(data),
	})
	row := &types.Document{
		SearchSpaceID:        spaceID,
		Title:                filename,
		DocumentType:         domdocs.TypeFile,
		SourceMarkdown:       markdown,
		ContentHash:          ingest.ContentHash(markdown),
		UniqueIdentifierHash: ingest.UniqueIdentifierHash(domdocs.TypeFile, uuid.NewString()),
		DocumentMetadata:     datatypes.JSON(meta),
		State:                domdocs.StatePending,
		CreatedByID:          userID,
	}
	return s.persistChecked(ctx, userID, row)
}

func (s *Service) persist(ctx context.Context, userID, spaceID uuid.UUID, row *types.Document) (*types.Document, error) {
	if err := s.spaces.Require(ctx, userID, spaceID, domspaces.PermDocumentsCreate); err != nil {
		return nil, err
	}
	return s.persistChecked(ctx, userID, row)
}

// persistChecked runs the shared dedup-upsert path. Quota is charged in
// the same transaction as the insert so a refusal rolls both back.
func (s *Service) persistChecked(ctx context.Context, userID uuid.UUID, row *types.Document) (*types.Document, error) {
	if err := s.guard.CheckEstimate(ctx, userID, 1); err != nil {
		return nil, err
	}

	var persisted *types.Document
	var created, changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		var err error
		persisted, created, changed, err = s.documents.UpsertByIdentity(dbc, row)
		if err != nil {
			return err
		}
		if created {
			return s.guard.ConsumeTx(dbc, userID, 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		id := persisted.ID
		if _, err := s.enqueuer.Enqueue(ctx, userID, domjobs.TypeDocumentProcess, "document", &id, map[string]any{
			"document_id": id.String(),
		}); err != nil {
			return nil, err
		}
	}
	return persisted, nil
}

func (s *Service) Get(ctx context.Context, userID, documentID uuid.UUID) (*types.Document, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.spaces.Require(ctx, userID, doc.SearchSpaceID, domspaces.PermDocumentsRead); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context, userID, spaceID uuid.UUID, docType string, states []string, limit, offset int) ([]*types.Document, int64, error) {
	if err := s.spaces.Require(ctx, userID, spaceID, domspaces.PermDocumentsRead); err != nil {
		return nil, 0, err
	}
	return s.documents.ListBySpace(dbctx.Context{Ctx: ctx}, spaceID, docType, states, limit, offset)
}

// Delete removes the document, its chunks, and its mirrored vectors.
// Consumed quota pages are not refunded.
func (s *Service) Delete(ctx context.Context, userID, documentID uuid.UUID) error {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.spaces.Require(ctx, userID, doc.SearchSpaceID, domspaces.PermDocumentsDelete); err != nil {
		return err
	}

	var chunkIDs []string
	if s.vectors != nil {
		if rows, lErr := s.chunks.ListByDocument(dbctx.Context{Ctx: ctx}, documentID); lErr == nil {
			for _, ch := range rows {
				chunkIDs = append(chunkIDs, ch.ID.String())
			}
		}
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.chunks.DeleteByDocument(dbc, documentID); err != nil {
			return err
		}
		return s.documents.Delete(dbc, documentID)
	}); err != nil {
		return err
	}

	if s.vectors != nil && len(chunkIDs) > 0 {
		if err := s.vectors.DeleteIDs(ctx, doc.SearchSpaceID.String(), chunkIDs); err != nil {
			s.log.Warn("vector delete failed", "document_id", documentID, "error", err)
		}
	}
	return nil
}

// Search runs the hybrid retriever for the space.
func (s *Service) Search(ctx context.Context, userID, spaceID uuid.UUID, query string, filters retrieval.Filters, k int) ([]*retrieval.RankedDocument, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apierr.Validation(fmt.Errorf("query required"))
	}
	if err := s.spaces.Require(ctx, userID, spaceID, domspaces.PermDocumentsRead); err != nil {
		return nil, err
	}
	return s.retriever.Search(ctx, spaceID, query, filters, k)
}

// RequestReindex queues a space-wide reindex of documents flagged
// content_needs_reindexing.
func (s *Service) RequestReindex(ctx context.Context, userID, spaceID uuid.UUID) (*types.JobRun, error) {
	if err := s.spaces.Require(ctx, userID, spaceID, domspaces.PermSpaceManage); err != nil {
		return nil, err
	}
	return s.enqueuer.Enqueue(ctx, userID, domjobs.TypeDocumentReindex, "search_space", &spaceID, map[string]any{
		"search_space_id": spaceID.String(),
	})
}

// MarkEdited stores updated editor content and flags the document for
// reprocessing.
func (s *Service) MarkEdited(ctx context.Context, userID, documentID uuid.UUID, markdown string, blocknote json.RawMessage) (*types.Document, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.spaces.Require(ctx, userID, doc.SearchSpaceID, domspaces.PermDocumentsCreate); err != nil {
		return nil, err
	}
	if doc.DocumentType != domdocs.TypeNote {
		return nil, apierr.Validation(fmt.Errorf("only notes are editable"))
	}

	updates := map[string]interface{}{
		"source_markdown":          markdown,
		"content_hash":             ingest.ContentHash(markdown),
		"content_needs_reindexing": true,
		"updated_at":               time.Now().UTC(),
	}
	if len(blocknote) > 0 {
		updates["blocknote_document"] = datatypes.JSON(blocknote)
	}
	if err := s.documents.UpdateFields(dbctx.Context{Ctx: ctx}, documentID, updates); err != nil {
		return nil, err
	}

	id := doc.ID
	if _, err := s.enqueuer.Enqueue(ctx, userID, domjobs.TypeDocumentReindex, "document", &id, map[string]any{
		"document_id": id.String(),
	}); err != nil {
		return nil, err
	}
	return s.load(ctx, documentID)
}

func (s *Service) load(ctx context.Context, documentID uuid.UUID) (*types.Document, error) {
	rows, err := s.documents.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{documentID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("document %s not found", documentID))
	}
	return rows[0], nil
}
