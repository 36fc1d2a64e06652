package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/agent"
	"github.com/surfsense/surfsense-backend/internal/chat"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/platform/bucket"
)

type ThreadHandler struct {
	chat   *chat.Service
	runner *agent.Runner
	store  bucket.Service
}

func NewThreadHandler(chatSvc *chat.Service, runner *agent.Runner, store bucket.Service) *ThreadHandler {
	return &ThreadHandler{chat: chatSvc, runner: runner, store: store}
}

func (h *ThreadHandler) Create(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	var req struct {
		Title      string `json:"title"`
		Visibility string `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	thread, err := h.chat.CreateThread(c.Request.Context(), UserID(c), spaceID, req.Title, req.Visibility)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, thread)
}

func (h *ThreadHandler) List(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	rows, err := h.chat.ListThreads(c.Request.Context(), UserID(c), spaceID, limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"threads": rows})
}

func (h *ThreadHandler) Get(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	thread, err := h.chat.GetThread(c.Request.Context(), UserID(c), threadID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, thread)
}

func (h *ThreadHandler) Update(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	thread, err := h.chat.UpdateThread(c.Request.Context(), UserID(c), threadID, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, thread)
}

func (h *ThreadHandler) Delete(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	if err := h.chat.DeleteThread(c.Request.Context(), UserID(c), threadID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (h *ThreadHandler) ListMessages(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	afterSeq, _ := strconv.ParseInt(c.DefaultQuery("after_seq", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := h.chat.ListMessages(c.Request.Context(), UserID(c), threadID, afterSeq, limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": rows})
}

// SendMessage appends the user message and runs the agent synchronously.
// Progress streams over the thread's SSE channel; aborting the request
// cancels the run at the next suspension point, committing partial output.
func (h *ThreadHandler) SendMessage(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	if err := h.runner.Run(c.Request.Context(), UserID(c), threadID, req.Content); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "done"})
}

func (h *ThreadHandler) CreateComment(c *gin.Context) {
	messageID, ok := PathUUID(c, "message_id")
	if !ok {
		return
	}
	var req struct {
		ParentID *uuid.UUID `json:"parent_id"`
		Content  string     `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	comment, err := h.chat.CreateComment(c.Request.Context(), UserID(c), messageID, req.ParentID, req.Content)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, comment)
}

func (h *ThreadHandler) ListComments(c *gin.Context) {
	messageID, ok := PathUUID(c, "message_id")
	if !ok {
		return
	}
	rows, err := h.chat.ListComments(c.Request.Context(), UserID(c), messageID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"comments": rows})
}

func (h *ThreadHandler) DeleteComment(c *gin.Context) {
	commentID, ok := PathUUID(c, "comment_id")
	if !ok {
		return
	}
	if err := h.chat.DeleteComment(c.Request.Context(), UserID(c), commentID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

// EnableSharing mints (or re-activates) the public share token and writes
// the first snapshot.
func (h *ThreadHandler) EnableSharing(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	thread, snapshot, err := h.chat.EnableSharing(c.Request.Context(), UserID(c), threadID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"share_token": thread.PublicShareToken,
		"snapshot_at": snapshot.CreatedAt,
	})
}

func (h *ThreadHandler) RefreshSnapshot(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	snapshot, err := h.chat.RefreshSnapshot(c.Request.Context(), UserID(c), threadID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"snapshot_at": snapshot.CreatedAt})
}

func (h *ThreadHandler) ListPodcasts(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	rows, err := h.chat.ListPodcasts(c.Request.Context(), UserID(c), threadID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"podcasts": rows})
}

// StreamPodcast serves the rendered audio to a reader of the thread.
func (h *ThreadHandler) StreamPodcast(c *gin.Context) {
	podcastID, ok := PathUUID(c, "podcast_id")
	if !ok {
		return
	}
	podcast, err := h.chat.GetPodcast(c.Request.Context(), UserID(c), podcastID)
	if err != nil {
		RespondError(c, err)
		return
	}
	if h.store == nil || podcast.FileRef == "" {
		RespondError(c, apierr.NotFound(fmt.Errorf("podcast audio unavailable")))
		return
	}

	ctx := c.Request.Context()
	attrs, err := h.store.Attrs(ctx, bucket.CategoryPodcast, podcast.FileRef)
	if err != nil {
		RespondError(c, err)
		return
	}

	offset, length := int64(0), int64(-1)
	status := http.StatusOK
	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		start, end, rErr := parseByteRange(rangeHeader, attrs.Size)
		if rErr != nil {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", attrs.Size))
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		offset = start
		length = end - start + 1
		status = http.StatusPartialContent
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, attrs.Size))
	}

	reader, err := h.store.OpenRange(ctx, bucket.CategoryPodcast, podcast.FileRef, offset, length)
	if err != nil {
		RespondError(c, err)
		return
	}
	defer reader.Close()

	size := attrs.Size - offset
	if length >= 0 {
		size = length
	}
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Length", strconv.FormatInt(size, 10))
	c.Header("Content-Type", "audio/mpeg")
	c.Status(status)
	_, _ = io.Copy(c.Writer, reader)
}

func (h *ThreadHandler) DisableSharing(c *gin.Context) {
	threadID, ok := PathUUID(c, "thread_id")
	if !ok {
		return
	}
	if err := h.chat.DisableSharing(c.Request.Context(), UserID(c), threadID); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
