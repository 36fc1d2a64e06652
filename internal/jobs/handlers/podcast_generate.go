package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	chatrepo "github.com/surfsense/surfsense-backend/internal/data/repos/chat"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domchat "github.com/surfsense/surfsense-backend/internal/domain/chat"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/jobs/runtime"
	"github.com/surfsense/surfsense-backend/internal/notify"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/bucket"
	"github.com/surfsense/surfsense-backend/internal/platform/openai"
	"github.com/surfsense/surfsense-backend/internal/quota"
)

const (
	podcastStatusPending = "pending"
	podcastStatusRunning = "running"
	podcastStatusReady   = "ready"
	podcastStatusFailed  = "failed"
)

// transcriptInputLimit bounds how much conversation text the script prompt
// sees.
const transcriptInputLimit = 60_000

const podcastSystemPrompt = `You turn a research conversation into a short narrated podcast script.
Write a single narrator's spoken monologue that presents the findings of the
conversation: what was asked, what the sources showed, and the conclusions.
Plain spoken prose only. No stage directions, no markdown, no speaker labels,
no citation markers. Aim for 600-900 words.`

// PodcastGenerateHandler renders a thread into audio: script the
// conversation, synthesize speech, upload, flip the podcast row to ready.
type PodcastGenerateHandler struct {
	podcasts chatrepo.PodcastRepo
	threads  chatrepo.ThreadRepo
	messages chatrepo.MessageRepo
	ai       openai.Client
	store    bucket.Service
	notifier *notify.Service
	guard    *quota.Guard
	log      *logger.Logger
}

func NewPodcastGenerateHandler(
	podcasts chatrepo.PodcastRepo,
	threads chatrepo.ThreadRepo,
	messages chatrepo.MessageRepo,
	ai openai.Client,
	store bucket.Service,
	notifier *notify.Service,
	guard *quota.Guard,
	log *logger.Logger,
) *PodcastGenerateHandler {
	return &PodcastGenerateHandler{
		podcasts: podcasts,
		threads:  threads,
		messages: messages,
		ai:       ai,
		store:    store,
		notifier: notifier,
		guard:    guard,
		log:      log.With("handler", domjobs.TypePodcastGenerate),
	}
}

func (h *PodcastGenerateHandler) Type() string { return domjobs.TypePodcastGenerate }

func (h *PodcastGenerateHandler) Run(jc *runtime.Context) error {
	podcastID, ok := jc.PayloadUUID("podcast_id")
	if !ok {
		jc.Fail("payload", fmt.Errorf("missing podcast_id"))
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	rows, err := h.podcasts.GetByIDs(dbc, []uuid.UUID{podcastID})
	if err != nil {
		jc.Fail("load", err)
		return nil
	}
	if len(rows) == 0 {
		jc.Fail("load", fmt.Errorf("podcast %s not found", podcastID))
		return nil
	}
	podcast := rows[0]
	if podcast.Status == podcastStatusReady {
		// Retried job after a lost claim; the artifact already exists.
		jc.Succeed("ready", map[string]any{"podcast_id": podcast.ID.String()})
		return nil
	}

	if err := h.podcasts.UpdateFields(dbc, podcast.ID, map[string]interface{}{
		"status": podcastStatusRunning,
	}); err != nil {
		jc.Fail("load", err)
		return nil
	}

	if err := h.render(jc, podcast); err != nil {
		if updErr := h.podcasts.UpdateFields(dbc, podcast.ID, map[string]interface{}{
			"status": podcastStatusFailed,
		}); updErr != nil {
			h.log.Error("record podcast failure", "podcast_id", podcast.ID, "error", updErr)
		}
		jc.Fail("render", err)
		return nil
	}

	jc.Succeed("ready", map[string]any{"podcast_id": podcast.ID.String()})
	return nil
}

func (h *PodcastGenerateHandler) render(jc *runtime.Context, podcast *types.Podcast) error {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	threads, err := h.threads.GetByIDs(dbc, []uuid.UUID{podcast.ThreadID})
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		return fmt.Errorf("thread %s not found", podcast.ThreadID)
	}
	thread := threads[0]

	conversation, err := h.conversationText(dbc, thread.ID)
	if err != nil {
		return err
	}
	if conversation == "" {
		return fmt.Errorf("thread has no text messages")
	}

	jc.Progress("scripting")
	transcript, err := h.ai.GenerateText(jc.Ctx, podcastSystemPrompt,
		fmt.Sprintf("Conversation title: %s\n\n%s", thread.Title, conversation))
	if err != nil {
		return fmt.Errorf("script generation: %w", err)
	}

	jc.Progress("synthesizing")
	voice := jc.PayloadString("voice")
	audio, err := h.ai.GenerateSpeech(jc.Ctx, transcript, voice)
	if err != nil {
		return fmt.Errorf("speech synthesis: %w", err)
	}

	jc.Progress("uploading")
	fileRef := podcast.ID.String() + ".mp3"
	if err := h.store.Upload(jc.Ctx, bucket.CategoryPodcast, fileRef, "audio/mpeg", bytes.NewReader(audio)); err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}

	title := podcast.Title
	if strings.TrimSpace(title) == "" {
		title = thread.Title
	}
	if err := h.podcasts.UpdateFields(dbc, podcast.ID, map[string]interface{}{
		"status":     podcastStatusReady,
		"title":      title,
		"transcript": transcript,
		"file_ref":   fileRef,
	}); err != nil {
		return err
	}

	if granted, err := h.guard.GrantIncentive(jc.Ctx, thread.CreatedByID, quota.TaskFirstPodcast); err != nil {
		h.log.Warn("podcast incentive grant failed", "user_id", thread.CreatedByID, "error", err)
	} else if granted {
		h.log.Info("first podcast incentive granted", "user_id", thread.CreatedByID)
	}

	spaceID := thread.SearchSpaceID
	if _, err := h.notifier.Notify(jc.Ctx, thread.CreatedByID, notify.TypePodcastReady,
		"Podcast ready", title, &spaceID, map[string]any{
			"podcast_id": podcast.ID.String(),
			"thread_id":  thread.ID.String(),
		}); err != nil {
		h.log.Warn("podcast notification failed", "podcast_id", podcast.ID, "error", err)
	}
	return nil
}

// conversationText flattens the thread's text parts into a role-labelled
// transcript for the script prompt, truncated from the front so the most
// recent exchange survives.
func (h *PodcastGenerateHandler) conversationText(dbc dbctx.Context, threadID uuid.UUID) (string, error) {
	msgs, err := h.messages.ListByThread(dbc, threadID, 0, 500)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, m := range msgs {
		if m.Role != domchat.RoleUser && m.Role != domchat.RoleAssistant {
			continue
		}
		var parts []domchat.ContentPart
		if err := json.Unmarshal(m.ContentParts, &parts); err != nil {
			continue
		}
		for _, part := range parts {
			if part.Type != domchat.PartText || strings.TrimSpace(part.Text) == "" {
				continue
			}
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(strings.TrimSpace(part.Text))
			b.WriteString("\n\n")
		}
	}

	text := strings.TrimSpace(b.String())
	if runes := []rune(text); len(runes) > transcriptInputLimit {
		text = string(runes[len(runes)-transcriptInputLimit:])
	}
	return text, nil
}
