package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/chat"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/platform/bucket"
)

// PublicHandler serves shared-thread views without authentication; the
// share token is the capability.
type PublicHandler struct {
	chat  *chat.Service
	store bucket.Service
}

func NewPublicHandler(chatSvc *chat.Service, store bucket.Service) *PublicHandler {
	return &PublicHandler{chat: chatSvc, store: store}
}

func (h *PublicHandler) GetSnapshot(c *gin.Context) {
	token := c.Param("token")
	snapshot, err := h.chat.PublicSnapshot(c.Request.Context(), token)
	if err != nil {
		RespondError(c, err)
		return
	}
	var payload chat.SnapshotPayload
	if err := json.Unmarshal(snapshot.Payload, &payload); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"snapshot_at": snapshot.CreatedAt, "thread": payload})
}

// Clone copies the shared snapshot into the caller's own space. Requires
// authentication even though the source is public.
func (h *PublicHandler) Clone(c *gin.Context) {
	token := c.Param("token")
	var req struct {
		SearchSpaceID string `json:"search_space_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	spaceID, ok := parseUUIDField(c, req.SearchSpaceID, "search_space_id")
	if !ok {
		return
	}
	thread, err := h.chat.CloneSnapshot(c.Request.Context(), UserID(c), token, spaceID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, thread)
}

// StreamPodcast serves podcast audio referenced by a public snapshot,
// honouring single-range requests for seekable playback.
func (h *PublicHandler) StreamPodcast(c *gin.Context) {
	token := c.Param("token")
	podcastID, ok := PathUUID(c, "podcast_id")
	if !ok {
		return
	}
	podcast, err := h.chat.PublicPodcast(c.Request.Context(), token, podcastID)
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

// parseByteRange handles a single "bytes=start-end" range.
func parseByteRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("unsupported range %q", header)
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range %q", header)
	}
	if startStr == "" {
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, nil
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, fmt.Errorf("range start out of bounds")
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, fmt.Errorf("malformed range %q", header)
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, nil
}

func parseUUIDField(c *gin.Context, raw, name string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		RespondValidation(c, "invalid "+name)
		return uuid.Nil, false
	}
	return parsed, true
}
