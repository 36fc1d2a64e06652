package bus

import (
	"context"

	"github.com/surfsense/surfsense-backend/internal/realtime"
)

// Bus fans SSE messages across processes: workers publish, API instances
// forward into their local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
