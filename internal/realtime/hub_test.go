package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	channel := ThreadChannel(uuid.New().String())

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventTextDelta, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventDone, Data: map[string]any{"seq": 2}})

	gotFirst := recvMessage(t, clientA.Outbound, time.Second)
	gotSecond := recvMessage(t, clientA.Outbound, time.Second)
	if gotFirst.Event != SSEEventTextDelta {
		t.Fatalf("first event: want=%s got=%s", SSEEventTextDelta, gotFirst.Event)
	}
	if gotSecond.Event != SSEEventDone {
		t.Fatalf("second event: want=%s got=%s", SSEEventDone, gotSecond.Event)
	}

	hub.CloseClient(clientA)
	select {
	case _, ok := <-clientA.Outbound:
		if ok {
			t.Fatalf("clientA outbound should be closed after disconnect")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for clientA channel close")
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventState, Data: map[string]any{"seq": 3}})
	got := recvMessage(t, clientB.Outbound, time.Second)
	if got.Event != SSEEventState {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventState, got.Event)
	}
}

func TestSSEHubChannelIsolation(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	threadCh := ThreadChannel(uuid.New().String())
	userCh := UserChannel(uuid.New().String())

	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, userCh)

	hub.Broadcast(SSEMessage{Channel: threadCh, Event: SSEEventTextDelta})
	hub.Broadcast(SSEMessage{Channel: userCh, Event: SSEEventNotification})

	got := recvMessage(t, client.Outbound, time.Second)
	if got.Event != SSEEventNotification {
		t.Fatalf("expected only the user-channel event, got %s", got.Event)
	}
	select {
	case extra := <-client.Outbound:
		t.Fatalf("unexpected extra event %s", extra.Event)
	default:
	}
}

func TestSSEHubDropsSlowClient(t *testing.T) {
	hub := NewSSEHub(logger.NewNop())
	channel := UserChannel(uuid.New().String())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	for i := 0; i < clientBuffer+1; i++ {
		hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobStatus, Data: map[string]any{"i": i}})
	}

	// Buffer overflow closes the outbound channel.
	n := 0
	for range client.Outbound {
		n++
	}
	if n != clientBuffer {
		t.Fatalf("expected %d buffered events before close, got %d", clientBuffer, n)
	}
}
