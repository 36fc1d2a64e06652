package realtime

// SSE event types emitted over the streaming transport. Agent events carry
// ordered output for one run; notification and job events fan out to the
// owning user's channel.
const (
	SSEEventTextDelta     = "text-delta"
	SSEEventToolCallStart = "tool-call-start"
	SSEEventToolCallEnd   = "tool-call-end"
	SSEEventCitation      = "citation"
	SSEEventState         = "state"
	SSEEventDone          = "done"
	SSEEventError         = "error"

	SSEEventNotification = "notification"
	SSEEventJobStatus    = "job-status"
)

type SSEMessage struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data,omitempty"`
}

// ThreadChannel and UserChannel name the two channel families.
func ThreadChannel(threadID string) string { return "thread:" + threadID }
func UserChannel(userID string) string     { return "user:" + userID }
