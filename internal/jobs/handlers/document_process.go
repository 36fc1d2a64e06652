package handlers

import (
	"fmt"

	"github.com/google/uuid"

	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/ingestion"
	"github.com/surfsense/surfsense-backend/internal/jobs/runtime"
	"github.com/surfsense/surfsense-backend/internal/notify"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// DocumentProcessHandler runs the chunk/embed/summarize pipeline for one
// document and tells the owner how it went.
type DocumentProcessHandler struct {
	processor *ingestion.Processor
	documents docrepo.DocumentRepo
	notifier  *notify.Service
	log       *logger.Logger
}

func NewDocumentProcessHandler(processor *ingestion.Processor, documents docrepo.DocumentRepo, notifier *notify.Service, log *logger.Logger) *DocumentProcessHandler {
	return &DocumentProcessHandler{
		processor: processor,
		documents: documents,
		notifier:  notifier,
		log:       log.With("handler", domjobs.TypeDocumentProcess),
	}
}

func (h *DocumentProcessHandler) Type() string { return domjobs.TypeDocumentProcess }

func (h *DocumentProcessHandler) Run(jc *runtime.Context) error {
	documentID, ok := jc.PayloadUUID("document_id")
	if !ok {
		jc.Fail("payload", fmt.Errorf("missing document_id"))
		return nil
	}

	jc.Progress("processing")
	if err := h.processor.ProcessDocument(jc.Ctx, documentID); err != nil {
		h.notifyOutcome(jc, documentID, notify.TypeDocumentFailed, err.Error())
		jc.Fail("process", err)
		return nil
	}

	h.notifyOutcome(jc, documentID, notify.TypeDocumentReady, "")
	jc.Succeed("ready", map[string]any{"document_id": documentID.String()})
	return nil
}

func (h *DocumentProcessHandler) notifyOutcome(jc *runtime.Context, documentID uuid.UUID, typ, errMsg string) {
	rows, err := h.documents.GetByIDs(dbctx.Context{Ctx: jc.Ctx}, []uuid.UUID{documentID})
	if err != nil || len(rows) == 0 {
		return
	}
	doc := rows[0]

	title := "Document ready"
	message := doc.Title
	if typ == notify.TypeDocumentFailed {
		title = "Document processing failed"
		message = fmt.Sprintf("%s: %s", doc.Title, errMsg)
	}
	spaceID := doc.SearchSpaceID
	if _, err := h.notifier.Notify(jc.Ctx, doc.CreatedByID, typ, title, message, &spaceID, map[string]any{
		"document_id": doc.ID.String(),
	}); err != nil {
		h.log.Warn("document notification failed", "document_id", doc.ID, "error", err)
	}
}
