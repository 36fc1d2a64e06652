package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	domspaces "github.com/surfsense/surfsense-backend/internal/domain/spaces"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/randtoken"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
)

// EnableSharing mints the share token on first use and writes a fresh
// sanitized snapshot. Re-enabling keeps the existing token stable.
func (s *Service) EnableSharing(ctx context.Context, userID, threadID uuid.UUID) (*types.ChatThread, *types.PublicChatSnapshot, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.requireSharingManage(ctx, userID, thread); err != nil {
		return nil, nil, err
	}

	token := thread.PublicShareToken
	if token == "" {
		token, err = randtoken.New(shareTokenBytes)
		if err != nil {
			return nil, nil, err
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	if err := s.threads.UpdateFields(dbc, threadID, map[string]interface{}{
		"public_share_token":   token,
		"public_share_enabled": true,
	}); err != nil {
		return nil, nil, err
	}
	thread.PublicShareToken = token
	thread.PublicShareEnabled = true

	snapshot, err := s.writeSnapshot(ctx, thread)
	if err != nil {
		return nil, nil, err
	}
	return thread, snapshot, nil
}

// RefreshSnapshot re-serializes the thread into its public snapshot so the
// shared view catches up with new messages.
func (s *Service) RefreshSnapshot(ctx context.Context, userID, threadID uuid.UUID) (*types.PublicChatSnapshot, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireSharingManage(ctx, userID, thread); err != nil {
		return nil, err
	}
	if !thread.PublicShareEnabled {
		return nil, apierr.Validation(fmt.Errorf("sharing is not enabled"))
	}
	return s.writeSnapshot(ctx, thread)
}

// DisableSharing turns the public URL off and drops the snapshots. The
// token survives so re-enabling does not break previously shared links.
func (s *Service) DisableSharing(ctx context.Context, userID, threadID uuid.UUID) error {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return err
	}
	if err := s.requireSharingManage(ctx, userID, thread); err != nil {
		return err
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := s.threads.UpdateFields(dbc, threadID, map[string]interface{}{
		"public_share_enabled": false,
	}); err != nil {
		return err
	}
	return s.snapshots.DeleteByThread(dbc, threadID)
}

// PublicSnapshot resolves a share token for an unauthenticated reader.
func (s *Service) PublicSnapshot(ctx context.Context, token string) (*types.PublicChatSnapshot, error) {
	dbc := dbctx.Context{Ctx: ctx}
	thread, err := s.threads.GetByShareToken(dbc, token)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, apierr.NotFound(fmt.Errorf("share link not found"))
	}
	snapshot, err := s.snapshots.GetByShareToken(dbc, token)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, apierr.NotFound(fmt.Errorf("share link not found"))
	}
	return snapshot, nil
}

// PublicPodcast resolves a podcast referenced by a snapshot, for the
// unauthenticated audio stream.
func (s *Service) PublicPodcast(ctx context.Context, token string, podcastID uuid.UUID) (*types.Podcast, error) {
	snapshot, err := s.PublicSnapshot(ctx, token)
	if err != nil {
		return nil, err
	}
	var payload SnapshotPayload
	if err := json.Unmarshal(snapshot.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	referenced := false
	for _, p := range payload.Podcasts {
		if p.ID == podcastID.String() {
			referenced = true
			break
		}
	}
	if !referenced {
		return nil, apierr.NotFound(fmt.Errorf("podcast not in snapshot"))
	}
	rows, err := s.podcasts.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{podcastID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("podcast not found"))
	}
	return rows[0], nil
}

// CloneSnapshot copies a shared thread's sanitized history into a new
// thread owned by the caller. The clone starts with clone_pending while the
// copy runs and needs_history_bootstrap set for the agent's first run.
func (s *Service) CloneSnapshot(ctx context.Context, userID uuid.UUID, token string, targetSpaceID uuid.UUID) (*types.ChatThread, error) {
	if err := s.spaces.Require(ctx, userID, targetSpaceID, domspaces.PermDocumentsRead); err != nil {
		return nil, err
	}
	snapshot, err := s.PublicSnapshot(ctx, token)
	if err != nil {
		return nil, err
	}
	var payload SnapshotPayload
	if err := json.Unmarshal(snapshot.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}

	sourceID := snapshot.ThreadID
	clone := &types.ChatThread{
		SearchSpaceID:         targetSpaceID,
		CreatedByID:           userID,
		Title:                 payload.ThreadTitle,
		ClonedFromThreadID:    &sourceID,
		ClonePending:          true,
		NeedsHistoryBootstrap: true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.threads.Create(dbc, []*types.ChatThread{clone}); err != nil {
			return err
		}
		if len(payload.Messages) > 0 {
			first, err := s.threads.AllocateSeq(dbc, clone.ID, int64(len(payload.Messages)))
			if err != nil {
				return err
			}
			rows := make([]*types.ChatMessage, 0, len(payload.Messages))
			for i, sm := range payload.Messages {
				raw, err := json.Marshal(sm.Parts)
				if err != nil {
					return err
				}
				rows = append(rows, &types.ChatMessage{
					ThreadID:     clone.ID,
					Seq:          first + int64(i),
					Role:         sm.Role,
					ContentParts: datatypes.JSON(raw),
				})
			}
			if _, err := s.messages.Create(dbc, rows); err != nil {
				return err
			}
		}
		// History copied; the bootstrap flag keeps carrying it into the
		// agent checkpoint on the first message.
		return s.threads.UpdateFields(dbc, clone.ID, map[string]interface{}{
			"clone_pending": false,
		})
	})
	if err != nil {
		return nil, err
	}
	clone.ClonePending = false
	return s.loadThread(ctx, clone.ID)
}

func (s *Service) writeSnapshot(ctx context.Context, thread *types.ChatThread) (*types.PublicChatSnapshot, error) {
	dbc := dbctx.Context{Ctx: ctx}
	msgs, err := s.messages.ListByThread(dbc, thread.ID, 0, 500)
	if err != nil {
		return nil, err
	}
	pods, err := s.podcasts.ListByThread(dbc, thread.ID)
	if err != nil {
		return nil, err
	}

	authors, err := s.snapshotAuthors(ctx, msgs)
	if err != nil {
		return nil, err
	}
	payload := BuildSnapshotPayload(thread, msgs, pods, authors)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot payload: %w", err)
	}

	snapshot := &types.PublicChatSnapshot{
		ThreadID:   thread.ID,
		ShareToken: thread.PublicShareToken,
		Payload:    datatypes.JSON(raw),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.snapshots.DeleteByThread(txc, thread.ID); err != nil {
			return err
		}
		_, err := s.snapshots.Create(txc, []*types.PublicChatSnapshot{snapshot})
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// snapshotAuthors resolves message authors to their display data.
func (s *Service) snapshotAuthors(ctx context.Context, msgs []*types.ChatMessage) (map[uuid.UUID]SnapshotAuthor, error) {
	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0)
	for _, m := range msgs {
		if m.AuthorID == nil || seen[*m.AuthorID] {
			continue
		}
		seen[*m.AuthorID] = true
		ids = append(ids, *m.AuthorID)
	}
	if len(ids) == 0 {
		return map[uuid.UUID]SnapshotAuthor{}, nil
	}
	users, err := s.users.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]SnapshotAuthor, len(users))
	for _, u := range users {
		name := u.DisplayName
		if name == "" {
			name = u.Email
		}
		out[u.ID] = SnapshotAuthor{Name: name, AvatarURL: u.AvatarURL}
	}
	return out, nil
}

func (s *Service) requireSharingManage(ctx context.Context, userID uuid.UUID, thread *types.ChatThread) error {
	if thread.CreatedByID == userID {
		return nil
	}
	return s.spaces.Require(ctx, userID, thread.SearchSpaceID, domspaces.PermPublicSharingManage)
}
