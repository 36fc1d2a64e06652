package handlers

import (
	"fmt"

	"github.com/google/uuid"

	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/ingestion"
	"github.com/surfsense/surfsense-backend/internal/jobs/runtime"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const reindexBatchSize = 50

// DocumentReindexHandler re-runs the pipeline for documents flagged
// content_needs_reindexing. Payload carries either a single document_id or a
// search_space_id to drain the whole space, batch by batch.
type DocumentReindexHandler struct {
	processor *ingestion.Processor
	documents docrepo.DocumentRepo
	log       *logger.Logger
}

func NewDocumentReindexHandler(processor *ingestion.Processor, documents docrepo.DocumentRepo, log *logger.Logger) *DocumentReindexHandler {
	return &DocumentReindexHandler{
		processor: processor,
		documents: documents,
		log:       log.With("handler", domjobs.TypeDocumentReindex),
	}
}

func (h *DocumentReindexHandler) Type() string { return domjobs.TypeDocumentReindex }

func (h *DocumentReindexHandler) Run(jc *runtime.Context) error {
	if documentID, ok := jc.PayloadUUID("document_id"); ok {
		jc.Progress("reindexing")
		if err := h.processor.ProcessDocument(jc.Ctx, documentID); err != nil {
			jc.Fail("reindex", err)
			return nil
		}
		jc.Succeed("reindexed", map[string]any{"reindexed": 1})
		return nil
	}

	spaceID, ok := jc.PayloadUUID("search_space_id")
	if !ok {
		jc.Fail("payload", fmt.Errorf("missing document_id or search_space_id"))
		return nil
	}

	// Failed documents keep their flag; the attempted set stops the drain
	// from spinning on them.
	attempted := map[uuid.UUID]bool{}
	reindexed, failed := 0, 0
	for {
		batch, err := h.documents.ListNeedingReindex(dbctx.Context{Ctx: jc.Ctx}, spaceID, reindexBatchSize)
		if err != nil {
			jc.Fail("list", err)
			return nil
		}

		progressed := false
		for _, doc := range batch {
			if attempted[doc.ID] {
				continue
			}
			attempted[doc.ID] = true
			progressed = true
			if err := h.processor.ProcessDocument(jc.Ctx, doc.ID); err != nil {
				failed++
				h.log.Warn("reindex failed", "document_id", doc.ID, "error", err)
				continue
			}
			reindexed++
		}
		if !progressed {
			break
		}
		jc.Progress(fmt.Sprintf("reindexed %d", reindexed))
	}

	jc.Succeed("reindexed", map[string]any{"reindexed": reindexed, "failed": failed})
	return nil
}
