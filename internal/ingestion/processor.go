package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domdocs "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/ingest"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/qdrant"
)

// Processor runs the per-document pipeline: chunk, embed, summarize, embed
// the summary, commit. Idempotent on the document id; retries restart the
// whole pipeline from the stored source markdown.
type Processor struct {
	db         *gorm.DB
	log        *logger.Logger
	documents  docrepo.DocumentRepo
	chunks     docrepo.ChunkRepo
	chunker    *ingest.Chunker
	embedder   *ingest.Embedder
	summarizer *ingest.Summarizer
	vectors    qdrant.VectorStore
}

// NewProcessor wires the pipeline. vectors may be nil; dense search then
// falls back to the SQL scorer.
func NewProcessor(
	db *gorm.DB,
	log *logger.Logger,
	documents docrepo.DocumentRepo,
	chunks docrepo.ChunkRepo,
	chunker *ingest.Chunker,
	embedder *ingest.Embedder,
	summarizer *ingest.Summarizer,
	vectors qdrant.VectorStore,
) *Processor {
	return &Processor{
		db:         db,
		log:        log.With("component", "DocumentProcessor"),
		documents:  documents,
		chunks:     chunks,
		chunker:    chunker,
		embedder:   embedder,
		summarizer: summarizer,
		vectors:    vectors,
	}
}

// ProcessDocument runs the pipeline and settles the document's state. The
// returned error is the pipeline failure, already recorded on the row.
func (p *Processor) ProcessDocument(ctx context.Context, documentID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := p.documents.GetByIDs(dbc, []uuid.UUID{documentID})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("document %s not found", documentID)
	}
	doc := rows[0]

	if doc.State == domdocs.StateReady && !doc.ContentNeedsReindexing {
		// Already settled; a retried job is a no-op.
		return nil
	}

	if err := p.documents.SetState(dbc, doc.ID, domdocs.StateProcessing, ""); err != nil {
		return err
	}

	if err := p.runPipeline(ctx, doc); err != nil {
		if stateErr := p.documents.SetState(dbc, doc.ID, domdocs.StateFailed, err.Error()); stateErr != nil {
			p.log.Error("record failure state", "document_id", doc.ID, "error", stateErr)
		}
		return err
	}
	return nil
}

func (p *Processor) runPipeline(ctx context.Context, doc *types.Document) error {
	source := doc.SourceMarkdown
	if strings.TrimSpace(source) == "" {
		source = doc.Content
	}
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("document has no source content")
	}

	texts := p.chunker.Chunk(source)
	if len(texts) == 0 {
		return fmt.Errorf("chunker produced no chunks")
	}

	vecs, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	for i, v := range vecs {
		if len(v) != p.embedder.Dimension() {
			return fmt.Errorf("chunk %d embedding dimension %d, want %d", i, len(v), p.embedder.Dimension())
		}
	}

	summary, summaryVec, err := p.summarizer.Summarize(ctx, doc.Title, source)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	newChunks := make([]*types.Chunk, len(texts))
	for i, text := range texts {
		newChunks[i] = &types.Chunk{
			Content:   text,
			Embedding: docrepo.EncodeEmbeddingJSON(vecs[i]),
		}
	}

	// Old chunk ids, so the mirrored vectors can be dropped after commit.
	dbc := dbctx.Context{Ctx: ctx}
	oldChunks, err := p.chunks.ListByDocument(dbc, doc.ID)
	if err != nil {
		return err
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := p.chunks.ReplaceForDocument(txc, doc.ID, newChunks); err != nil {
			return err
		}
		return p.documents.UpdateFields(txc, doc.ID, map[string]interface{}{
			"content":                  summary,
			"embedding":                docrepo.EncodeEmbeddingJSON(summaryVec),
			"state":                    domdocs.StateReady,
			"state_error":              "",
			"content_needs_reindexing": false,
		})
	})
	if err != nil {
		return err
	}

	p.mirrorVectors(ctx, doc, oldChunks, newChunks)
	return nil
}

// mirrorVectors syncs the chunk vectors into the vector store. Failures are
// logged only: Postgres holds the authoritative copy and dense search falls
// back to it.
func (p *Processor) mirrorVectors(ctx context.Context, doc *types.Document, oldChunks, newChunks []*types.Chunk) {
	if p.vectors == nil {
		return
	}
	namespace := doc.SearchSpaceID.String()

	if len(oldChunks) > 0 {
		ids := make([]string, len(oldChunks))
		for i, ch := range oldChunks {
			ids[i] = ch.ID.String()
		}
		if err := p.vectors.DeleteIDs(ctx, namespace, ids); err != nil {
			p.log.Warn("vector delete failed", "document_id", doc.ID, "error", err)
		}
	}

	vectors := make([]qdrant.Vector, 0, len(newChunks))
	for _, ch := range newChunks {
		vals, err := docrepo.ParseEmbeddingJSON(ch.Embedding)
		if err != nil {
			continue
		}
		vectors = append(vectors, qdrant.Vector{
			ID:     ch.ID.String(),
			Values: vals,
			Metadata: map[string]any{
				"document_id": doc.ID.String(),
			},
		})
	}
	if err := p.vectors.Upsert(ctx, namespace, vectors); err != nil {
		p.log.Warn("vector upsert failed", "document_id", doc.ID, "error", err)
	}
}
