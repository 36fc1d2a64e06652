package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/chat"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/realtime"
)

const sseHeartbeatEvery = 25 * time.Second

// RealtimeHandler owns the SSE endpoint and channel subscriptions. One
// stream per user; opening a second stream replaces the first.
type RealtimeHandler struct {
	log  *logger.Logger
	hub  *realtime.SSEHub
	chat *chat.Service

	mu      sync.RWMutex
	clients map[uuid.UUID]*realtime.SSEClient
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, chatSvc *chat.Service) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "realtime"),
		hub:     hub,
		chat:    chatSvc,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// Stream opens the event stream. The client is always subscribed to its
// user channel; a thread_id query param subscribes the thread channel up
// front so no run events are missed between connect and subscribe.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	userID := UserID(c)

	h.mu.Lock()
	if existing, ok := h.clients[userID]; ok {
		h.hub.CloseClient(existing)
	}
	client := h.hub.NewSSEClient(userID)
	h.clients[userID] = client
	h.mu.Unlock()

	h.hub.AddChannel(client, realtime.UserChannel(userID.String()))

	if raw := c.Query("thread_id"); raw != "" {
		threadID, err := uuid.Parse(raw)
		if err != nil {
			h.dropClient(userID, client)
			RespondValidation(c, "invalid thread_id")
			return
		}
		if _, err := h.chat.GetThread(c.Request.Context(), userID, threadID); err != nil {
			h.dropClient(userID, client)
			RespondError(c, err)
			return
		}
		h.hub.AddChannel(client, realtime.ThreadChannel(threadID.String()))
	}

	h.log.Info("sse stream open", "user_id", userID, "client_id", client.ID)
	h.serve(c, client)

	h.dropClient(userID, client)
	h.log.Info("sse stream closed", "user_id", userID, "client_id", client.ID)
}

// Subscribe adds a channel to the caller's open stream. Thread channels
// go through the thread-read ACL before the hub sees them.
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	h.changeSubscription(c, h.hub.AddChannel)
}

func (h *RealtimeHandler) Unsubscribe(c *gin.Context) {
	h.changeSubscription(c, h.hub.RemoveChannel)
}

func (h *RealtimeHandler) changeSubscription(c *gin.Context, apply func(*realtime.SSEClient, string)) {
	userID := UserID(c)
	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
		RespondValidation(c, "channel required")
		return
	}
	if err := h.authorizeChannel(c, userID, req.Channel); err != nil {
		RespondError(c, err)
		return
	}

	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusConflict, ErrorEnvelope{Error: APIError{
			Message: "no active event stream",
			Code:    "no_stream",
		}})
		return
	}
	apply(client, req.Channel)
	RespondOK(c, gin.H{"channel": req.Channel})
}

// authorizeChannel gates channel names: a user may join their own user
// channel and any thread channel they can read. Everything else is refused.
func (h *RealtimeHandler) authorizeChannel(c *gin.Context, userID uuid.UUID, channel string) error {
	if channel == realtime.UserChannel(userID.String()) {
		return nil
	}
	if raw, ok := strings.CutPrefix(channel, "thread:"); ok {
		threadID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid thread channel %q", channel)
		}
		_, err = h.chat.GetThread(c.Request.Context(), userID, threadID)
		return err
	}
	return fmt.Errorf("unknown channel %q", channel)
}

// serve drains the client's outbound buffer into the response as SSE
// frames until the client disconnects or the hub closes the channel.
func (h *RealtimeHandler) serve(c *gin.Context, client *realtime.SSEClient) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.log.Warn("response writer does not support flushing")
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatEvery)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Comment frames keep intermediaries from idling out the
			// connection without surfacing as events client-side.
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-client.Outbound:
			if !open {
				return
			}
			if err := writeSSEFrame(c.Writer, msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, msg realtime.SSEMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, payload)
	return err
}

func (h *RealtimeHandler) dropClient(userID uuid.UUID, client *realtime.SSEClient) {
	h.mu.Lock()
	if h.clients[userID] == client {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
	h.hub.CloseClient(client)
}
