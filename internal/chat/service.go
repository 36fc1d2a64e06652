package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	chatrepo "github.com/surfsense/surfsense-backend/internal/data/repos/chat"
	userrepo "github.com/surfsense/surfsense-backend/internal/data/repos/user"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domchat "github.com/surfsense/surfsense-backend/internal/domain/chat"
	domspaces "github.com/surfsense/surfsense-backend/internal/domain/spaces"
	"github.com/surfsense/surfsense-backend/internal/notify"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/spaces"
)

// shareTokenBytes per the public-sharing contract: 32 random bytes,
// URL-safe encoded.
const shareTokenBytes = 32

// Service owns threads, messages, comments, and the public-sharing surface.
// ACLs resolve through the space service's permission catalog.
type Service struct {
	db        *gorm.DB
	log       *logger.Logger
	threads   chatrepo.ThreadRepo
	messages  chatrepo.MessageRepo
	comments  chatrepo.CommentRepo
	mentions  chatrepo.MentionRepo
	snapshots chatrepo.SnapshotRepo
	podcasts  chatrepo.PodcastRepo
	users     userrepo.UserRepo
	spaces    *spaces.Service
	notifier  *notify.Service
}

func NewService(
	db *gorm.DB,
	log *logger.Logger,
	threads chatrepo.ThreadRepo,
	messages chatrepo.MessageRepo,
	comments chatrepo.CommentRepo,
	mentions chatrepo.MentionRepo,
	snapshots chatrepo.SnapshotRepo,
	podcasts chatrepo.PodcastRepo,
	users userrepo.UserRepo,
	spaceSvc *spaces.Service,
	notifier *notify.Service,
) *Service {
	return &Service{
		db:        db,
		log:       log.With("service", "ChatService"),
		threads:   threads,
		messages:  messages,
		comments:  comments,
		mentions:  mentions,
		snapshots: snapshots,
		podcasts:  podcasts,
		users:     users,
		spaces:    spaceSvc,
		notifier:  notifier,
	}
}

// -------------------- Threads --------------------

func (s *Service) CreateThread(ctx context.Context, userID, spaceID uuid.UUID, title, visibility string) (*types.ChatThread, error) {
	if err := s.spaces.Require(ctx, userID, spaceID, domspaces.PermDocumentsRead); err != nil {
		return nil, err
	}
	if visibility == "" {
		visibility = domchat.ThreadVisibilityPrivate
	}
	if visibility != domchat.ThreadVisibilityPrivate && visibility != domchat.ThreadVisibilitySpace {
		return nil, apierr.Validation(fmt.Errorf("invalid visibility %q", visibility))
	}
	thread := &types.ChatThread{
		SearchSpaceID: spaceID,
		CreatedByID:   userID,
		Visibility:    visibility,
	}
	if title != "" {
		thread.Title = title
	}
	if _, err := s.threads.Create(dbctx.Context{Ctx: ctx}, []*types.ChatThread{thread}); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *Service) GetThread(ctx context.Context, userID, threadID uuid.UUID) (*types.ChatThread, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireThreadRead(ctx, userID, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

func (s *Service) ListThreads(ctx context.Context, userID, spaceID uuid.UUID, limit, offset int) ([]*types.ChatThread, error) {
	if err := s.spaces.Require(ctx, userID, spaceID, domspaces.PermDocumentsRead); err != nil {
		return nil, err
	}
	return s.threads.ListBySpaceForUser(dbctx.Context{Ctx: ctx}, spaceID, userID, limit, offset)
}

// UpdateThread changes title or visibility. Creator only.
func (s *Service) UpdateThread(ctx context.Context, userID, threadID uuid.UUID, updates map[string]interface{}) (*types.ChatThread, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.CreatedByID != userID {
		return nil, apierr.PermissionDenied(fmt.Errorf("only the creator can edit a thread"))
	}
	allowed := map[string]bool{"title": true, "visibility": true}
	filtered := map[string]interface{}{}
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil, apierr.Validation(fmt.Errorf("no updatable fields"))
	}
	if err := s.threads.UpdateFields(dbctx.Context{Ctx: ctx}, threadID, filtered); err != nil {
		return nil, err
	}
	return s.loadThread(ctx, threadID)
}

func (s *Service) DeleteThread(ctx context.Context, userID, threadID uuid.UUID) error {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return err
	}
	if thread.CreatedByID != userID {
		if err := s.spaces.Require(ctx, userID, thread.SearchSpaceID, domspaces.PermSpaceManage); err != nil {
			return err
		}
	}
	return s.threads.Delete(dbctx.Context{Ctx: ctx}, threadID)
}

// -------------------- Messages --------------------

// AppendMessage allocates the next sequence number under the thread row
// lock and inserts the message; state_version advances with the allocation.
func (s *Service) AppendMessage(ctx context.Context, userID, threadID uuid.UUID, role string, parts []domchat.ContentPart) (*types.ChatMessage, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread.CreatedByID != userID {
		return nil, apierr.PermissionDenied(fmt.Errorf("only the creator can post to a thread"))
	}
	switch role {
	case domchat.RoleUser, domchat.RoleAssistant, domchat.RoleSystem, domchat.RoleTool:
	default:
		return nil, apierr.Validation(fmt.Errorf("invalid role %q", role))
	}
	if len(parts) == 0 {
		return nil, apierr.Validation(fmt.Errorf("message has no content"))
	}

	var authorID *uuid.UUID
	if role == domchat.RoleUser {
		authorID = &userID
	}
	return s.appendMessage(ctx, threadID, role, authorID, parts)
}

// appendMessage is the unchecked insert path, shared with the agent runtime.
func (s *Service) appendMessage(ctx context.Context, threadID uuid.UUID, role string, authorID *uuid.UUID, parts []domchat.ContentPart) (*types.ChatMessage, error) {
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("encode content parts: %w", err)
	}

	var msg *types.ChatMessage
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		seq, err := s.threads.AllocateSeq(dbc, threadID, 1)
		if err != nil {
			return err
		}
		rows, err := s.messages.Create(dbc, []*types.ChatMessage{{
			ThreadID:     threadID,
			Seq:          seq,
			Role:         role,
			AuthorID:     authorID,
			ContentParts: datatypes.JSON(raw),
		}})
		if err != nil {
			return err
		}
		msg = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// AppendAgentMessage inserts an assistant or tool message without the
// creator check; the agent runtime already holds the thread's run slot.
func (s *Service) AppendAgentMessage(ctx context.Context, threadID uuid.UUID, role string, parts []domchat.ContentPart) (*types.ChatMessage, error) {
	if len(parts) == 0 {
		return nil, apierr.Validation(fmt.Errorf("message has no content"))
	}
	return s.appendMessage(ctx, threadID, role, nil, parts)
}

func (s *Service) ListMessages(ctx context.Context, userID, threadID uuid.UUID, afterSeq int64, limit int) ([]*types.ChatMessage, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireThreadRead(ctx, userID, thread); err != nil {
		return nil, err
	}
	return s.messages.ListByThread(dbctx.Context{Ctx: ctx}, threadID, afterSeq, limit)
}

// -------------------- Comments --------------------

// CreateComment attaches threaded discussion to an assistant message and
// fans out mention notifications to resolved space members.
func (s *Service) CreateComment(ctx context.Context, userID, messageID uuid.UUID, parentID *uuid.UUID, content string) (*types.Comment, error) {
	if content == "" {
		return nil, apierr.Validation(fmt.Errorf("content required"))
	}
	msgs, err := s.messages.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{messageID})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("message %s not found", messageID))
	}
	msg := msgs[0]

	thread, err := s.loadThread(ctx, msg.ThreadID)
	if err != nil {
		return nil, err
	}
	if err := s.spaces.Require(ctx, userID, thread.SearchSpaceID, domspaces.PermCommentsCreate); err != nil {
		return nil, err
	}
	if parentID != nil {
		parents, err := s.comments.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{*parentID})
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 || parents[0].MessageID != messageID {
			return nil, apierr.Validation(fmt.Errorf("parent comment not under this message"))
		}
	}

	mentionIDs := s.resolveMentions(ctx, thread.SearchSpaceID, ExtractMentions(content))

	var comment *types.Comment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		rows, err := s.comments.Create(dbc, []*types.Comment{{
			MessageID: messageID,
			ThreadID:  msg.ThreadID,
			ParentID:  parentID,
			AuthorID:  userID,
			Content:   content,
		}})
		if err != nil {
			return err
		}
		comment = rows[0]

		mentionRows := make([]*types.Mention, 0, len(mentionIDs))
		for _, id := range mentionIDs {
			mentionRows = append(mentionRows, &types.Mention{CommentID: comment.ID, MentionedUserID: id})
		}
		_, err = s.mentions.Create(dbc, mentionRows)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyMentions(ctx, thread, comment, mentionIDs)
	return comment, nil
}

// resolveMentions keeps only mentioned users who can read the space; the
// author mentioning themself is dropped too, there is nothing to notify.
func (s *Service) resolveMentions(ctx context.Context, spaceID uuid.UUID, ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		ok, err := s.spaces.Can(ctx, id, spaceID, domspaces.PermCommentsRead)
		if err != nil || !ok {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (s *Service) notifyMentions(ctx context.Context, thread *types.ChatThread, comment *types.Comment, mentionIDs []uuid.UUID) {
	spaceID := thread.SearchSpaceID
	for _, id := range mentionIDs {
		if id == comment.AuthorID {
			continue
		}
		if _, err := s.notifier.Notify(ctx, id, notify.TypeCommentMention,
			"You were mentioned", fmt.Sprintf("In a comment on %s", thread.Title), &spaceID,
			map[string]any{
				"comment_id": comment.ID.String(),
				"thread_id":  thread.ID.String(),
				"message_id": comment.MessageID.String(),
			}); err != nil {
			s.log.Warn("mention notification failed", "comment_id", comment.ID, "error", err)
		}
	}
}

func (s *Service) ListComments(ctx context.Context, userID, messageID uuid.UUID) ([]*types.Comment, error) {
	msgs, err := s.messages.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{messageID})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("message %s not found", messageID))
	}
	thread, err := s.loadThread(ctx, msgs[0].ThreadID)
	if err != nil {
		return nil, err
	}
	if err := s.spaces.Require(ctx, userID, thread.SearchSpaceID, domspaces.PermCommentsRead); err != nil {
		return nil, err
	}
	return s.comments.ListByMessage(dbctx.Context{Ctx: ctx}, messageID)
}

func (s *Service) DeleteComment(ctx context.Context, userID, commentID uuid.UUID) error {
	rows, err := s.comments.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{commentID})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apierr.NotFound(fmt.Errorf("comment %s not found", commentID))
	}
	comment := rows[0]
	if comment.AuthorID != userID {
		thread, err := s.loadThread(ctx, comment.ThreadID)
		if err != nil {
			return err
		}
		if err := s.spaces.Require(ctx, userID, thread.SearchSpaceID, domspaces.PermCommentsDelete); err != nil {
			return err
		}
	}
	return s.comments.Delete(dbctx.Context{Ctx: ctx}, commentID)
}

// -------------------- Podcasts --------------------

// ListPodcasts returns the thread's podcasts for anyone who can read it.
func (s *Service) ListPodcasts(ctx context.Context, userID, threadID uuid.UUID) ([]*types.Podcast, error) {
	thread, err := s.loadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireThreadRead(ctx, userID, thread); err != nil {
		return nil, err
	}
	return s.podcasts.ListByThread(dbctx.Context{Ctx: ctx}, threadID)
}

// GetPodcast resolves one podcast through the thread-read ACL.
func (s *Service) GetPodcast(ctx context.Context, userID, podcastID uuid.UUID) (*types.Podcast, error) {
	rows, err := s.podcasts.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{podcastID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("podcast %s not found", podcastID))
	}
	podcast := rows[0]
	thread, err := s.loadThread(ctx, podcast.ThreadID)
	if err != nil {
		return nil, err
	}
	if err := s.requireThreadRead(ctx, userID, thread); err != nil {
		return nil, err
	}
	return podcast, nil
}

// -------------------- Access helpers --------------------

func (s *Service) loadThread(ctx context.Context, threadID uuid.UUID) (*types.ChatThread, error) {
	rows, err := s.threads.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{threadID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("thread %s not found", threadID))
	}
	return rows[0], nil
}

// requireThreadRead: the creator always reads; others need the thread
// shared to the space plus documents:read there.
func (s *Service) requireThreadRead(ctx context.Context, userID uuid.UUID, thread *types.ChatThread) error {
	if thread.CreatedByID == userID {
		return nil
	}
	if thread.Visibility != domchat.ThreadVisibilitySpace {
		return apierr.PermissionDenied(fmt.Errorf("thread is private"))
	}
	return s.spaces.Require(ctx, userID, thread.SearchSpaceID, domspaces.PermDocumentsRead)
}
