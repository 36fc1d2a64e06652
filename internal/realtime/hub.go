package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// SSEClient is one connected event-stream consumer. Outbound is drained by
// the HTTP handler; a slow client gets dropped rather than blocking the hub.
type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
}

const clientBuffer = 256

// SSEHub fans messages out to subscribed clients. Broadcast holds one lock
// for the whole send, so two broadcasts never interleave: every client sees
// events in publish order.
type SSEHub struct {
	log *logger.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]*SSEClient
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		log:     log.With("service", "SSEHub"),
		clients: map[uuid.UUID]*SSEClient{},
	}
}

func (h *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	c := &SSEClient{
		ID:       uuid.New(),
		UserID:   userID,
		Channels: map[string]bool{},
		Outbound: make(chan SSEMessage, clientBuffer),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

func (h *SSEHub) AddChannel(c *SSEClient, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	c.Channels[channel] = true
}

func (h *SSEHub) RemoveChannel(c *SSEClient, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.Channels, channel)
}

// Broadcast delivers to every client subscribed to the message's channel.
// A client with a full buffer is closed and removed; the SSE handler's read
// loop ends and the browser reconnects.
func (h *SSEHub) Broadcast(msg SSEMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		if !c.Channels[msg.Channel] {
			continue
		}
		select {
		case c.Outbound <- msg:
		default:
			h.log.Warn("dropping slow SSE client", "client_id", id, "user_id", c.UserID)
			delete(h.clients, id)
			close(c.Outbound)
		}
	}
}

func (h *SSEHub) CloseClient(c *SSEClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.Outbound)
}
