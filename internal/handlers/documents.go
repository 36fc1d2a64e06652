package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/surfsense/surfsense-backend/internal/documents"
	"github.com/surfsense/surfsense-backend/internal/retrieval"
)

type DocumentHandler struct {
	documents *documents.Service
}

func NewDocumentHandler(docSvc *documents.Service) *DocumentHandler {
	return &DocumentHandler{documents: docSvc}
}

func (h *DocumentHandler) CreateNote(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	var req struct {
		Title    string `json:"title"`
		Markdown string `json:"markdown"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	doc, err := h.documents.CreateNote(c.Request.Context(), UserID(c), spaceID, req.Title, req.Markdown)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, doc)
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondValidation(c, "file required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, err)
		return
	}
	contentType := header.Header.Get("Content-Type")
	doc, err := h.documents.UploadFile(c.Request.Context(), UserID(c), spaceID, header.Filename, contentType, raw)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	var states []string
	if raw := c.Query("states"); raw != "" {
		states = strings.Split(raw, ",")
	}
	rows, total, err := h.documents.List(c.Request.Context(), UserID(c), spaceID, c.Query("document_type"), states, limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"documents": rows, "total": total})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	documentID, ok := PathUUID(c, "document_id")
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), UserID(c), documentID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	documentID, ok := PathUUID(c, "document_id")
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), UserID(c), documentID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (h *DocumentHandler) Edit(c *gin.Context) {
	documentID, ok := PathUUID(c, "document_id")
	if !ok {
		return
	}
	var req struct {
		Markdown  string          `json:"markdown"`
		Blocknote json.RawMessage `json:"blocknote"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	doc, err := h.documents.MarkEdited(c.Request.Context(), UserID(c), documentID, req.Markdown, req.Blocknote)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, doc)
}

// Search runs the hybrid retriever. Filters arrive as query parameters.
func (h *DocumentHandler) Search(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	query := c.Query("q")
	k, _ := strconv.Atoi(c.DefaultQuery("k", "10"))

	filters := retrieval.Filters{}
	if raw := c.Query("document_types"); raw != "" {
		filters.DocumentTypes = strings.Split(raw, ",")
	}
	if raw := c.Query("connector_types"); raw != "" {
		filters.ConnectorTypes = strings.Split(raw, ",")
	}
	if raw := c.Query("updated_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondValidation(c, "updated_after must be RFC3339")
			return
		}
		filters.UpdatedAfter = &t
	}

	results, err := h.documents.Search(c.Request.Context(), UserID(c), spaceID, query, filters, k)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": results})
}

// Reindex queues a space-wide reprocessing of flagged documents.
func (h *DocumentHandler) Reindex(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	job, err := h.documents.RequestReindex(c.Request.Context(), UserID(c), spaceID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}
