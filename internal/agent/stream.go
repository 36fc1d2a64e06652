package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/realtime"
	"github.com/surfsense/surfsense-backend/internal/realtime/bus"
)

// Emitter publishes one run's ordered event stream to the thread channel.
// All events of a run flow through one emitter, so bus publish order is the
// run's total order.
type Emitter struct {
	bus     bus.Bus
	channel string
	log     *logger.Logger
}

func NewEmitter(b bus.Bus, threadID uuid.UUID, log *logger.Logger) *Emitter {
	return &Emitter{
		bus:     b,
		channel: realtime.ThreadChannel(threadID.String()),
		log:     log,
	}
}

func (e *Emitter) emit(ctx context.Context, event string, data map[string]any) {
	if e == nil || e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, realtime.SSEMessage{
		Channel: e.channel,
		Event:   event,
		Data:    data,
	}); err != nil {
		e.log.Warn("stream publish failed", "event", event, "error", err)
	}
}

func (e *Emitter) TextDelta(ctx context.Context, delta string) {
	e.emit(ctx, realtime.SSEEventTextDelta, map[string]any{"delta": delta})
}

func (e *Emitter) ToolCallStart(ctx context.Context, tool string, args map[string]any) {
	e.emit(ctx, realtime.SSEEventToolCallStart, map[string]any{"tool": tool, "args": args})
}

func (e *Emitter) ToolCallEnd(ctx context.Context, tool string, result any, errMsg string) {
	data := map[string]any{"tool": tool}
	if result != nil {
		data["result"] = result
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	e.emit(ctx, realtime.SSEEventToolCallEnd, data)
}

func (e *Emitter) Citation(ctx context.Context, doc RetrievedDoc) {
	e.emit(ctx, realtime.SSEEventCitation, map[string]any{
		"anchor":      CitationAnchor(doc.DocumentID),
		"document_id": doc.DocumentID.String(),
		"title":       doc.Title,
	})
}

func (e *Emitter) StateUpdate(ctx context.Context, state string, extra map[string]any) {
	data := map[string]any{"state": state}
	for k, v := range extra {
		data[k] = v
	}
	e.emit(ctx, realtime.SSEEventState, data)
}

// Done is terminal; messageID names the committed assistant message.
func (e *Emitter) Done(ctx context.Context, messageID uuid.UUID) {
	e.emit(ctx, realtime.SSEEventDone, map[string]any{"message_id": messageID.String()})
}

// Error is terminal with a machine-readable code.
func (e *Emitter) Error(ctx context.Context, code, message string) {
	e.emit(ctx, realtime.SSEEventError, map[string]any{"code": code, "message": message})
}
