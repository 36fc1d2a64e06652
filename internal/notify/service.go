package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	notifyrepo "github.com/surfsense/surfsense-backend/internal/data/repos/notify"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/realtime"
	"github.com/surfsense/surfsense-backend/internal/realtime/bus"
)

// Notification types emitted by the backend.
const (
	TypeConnectorIndexed = "connector_indexed"
	TypeDocumentReady    = "document_ready"
	TypeDocumentFailed   = "document_failed"
	TypePodcastReady     = "podcast_ready"
	TypeCommentMention   = "comment_mention"
	TypeSpaceInvite      = "space_invite"
)

// Service inserts notification rows and forwards them to the owning user's
// live clients. The row is written first; the bus publish follows the
// commit, so clients never see a notification that later rolled back.
type Service struct {
	repo notifyrepo.NotificationRepo
	bus  bus.Bus
	log  *logger.Logger
}

func NewService(repo notifyrepo.NotificationRepo, b bus.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: b, log: log.With("service", "NotifyService")}
}

// Notify persists the notification and publishes it. A bus failure is
// logged, not returned: the row is the source of truth and the client
// catches up on the next list call.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, spaceID *uuid.UUID, meta map[string]any) (*types.Notification, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user id")
	}
	metaJSON := datatypes.JSON([]byte("{}"))
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("encode notification metadata: %w", err)
		}
		metaJSON = datatypes.JSON(raw)
	}
	n := &types.Notification{
		UserID:        userID,
		Type:          typ,
		Title:         title,
		Message:       message,
		Metadata:      metaJSON,
		SearchSpaceID: spaceID,
	}
	rows, err := s.repo.Create(dbctx.Context{Ctx: ctx}, []*types.Notification{n})
	if err != nil {
		return nil, err
	}
	created := rows[0]

	if s.bus != nil {
		msg := realtime.SSEMessage{
			Channel: realtime.UserChannel(userID.String()),
			Event:   realtime.SSEEventNotification,
			Data: map[string]any{
				"id":      created.ID.String(),
				"type":    created.Type,
				"title":   created.Title,
				"message": created.Message,
			},
		}
		if err := s.bus.Publish(ctx, msg); err != nil {
			s.log.Warn("notification publish failed", "user_id", userID, "error", err)
		}
	}
	return created, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*types.Notification, error) {
	return s.repo.ListForUser(dbctx.Context{Ctx: ctx}, userID, unreadOnly, limit, offset)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(dbctx.Context{Ctx: ctx}, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	return s.repo.MarkRead(dbctx.Context{Ctx: ctx}, userID, ids)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(dbctx.Context{Ctx: ctx}, userID)
}

func (s *Service) Archive(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	return s.repo.Archive(dbctx.Context{Ctx: ctx}, userID, ids)
}
