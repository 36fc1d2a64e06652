package chat

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	domchat "github.com/surfsense/surfsense-backend/internal/domain/chat"
)

// Tools whose calls and results may appear in a public snapshot. Everything
// else (retrieval internals, connector access) is stripped.
var publicToolAllowList = map[string]bool{
	"display_image":      true,
	"link_preview":       true,
	"generate_podcast":   true,
	"scrape_webpage":     true,
	"multi_link_preview": true,
}

var citationPattern = regexp.MustCompile(`\[citation:[^\]]*\]`)

// StripCitations removes [citation:doc-ID] anchors from public text.
func StripCitations(text string) string {
	return citationPattern.ReplaceAllString(text, "")
}

// SnapshotAuthor is the embedded display data for a message author.
type SnapshotAuthor struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// SnapshotMessage is the sanitized public form of one chat message.
type SnapshotMessage struct {
	Role      string                `json:"role"`
	Seq       int64                 `json:"seq"`
	Author    *SnapshotAuthor       `json:"author,omitempty"`
	Parts     []domchat.ContentPart `json:"parts"`
	CreatedAt time.Time             `json:"created_at"`
}

// SnapshotPodcast references a rendered podcast from inside a snapshot.
type SnapshotPodcast struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// SnapshotPayload is the full embedded document a public reader receives.
type SnapshotPayload struct {
	ThreadTitle  string            `json:"thread_title"`
	StateVersion int64             `json:"state_version"`
	Messages     []SnapshotMessage `json:"messages"`
	Podcasts     []SnapshotPodcast `json:"podcasts"`
}

// SanitizeMessages converts thread messages into their public form:
// user/assistant only, citations stripped, tool parts filtered to the
// allow-list. Messages left with no parts are dropped. authors embeds
// display data so the public reader needs no joins.
func SanitizeMessages(msgs []*types.ChatMessage, authors map[uuid.UUID]SnapshotAuthor) []SnapshotMessage {
	out := make([]SnapshotMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != domchat.RoleUser && m.Role != domchat.RoleAssistant {
			continue
		}
		var parts []domchat.ContentPart
		if err := json.Unmarshal(m.ContentParts, &parts); err != nil {
			continue
		}
		kept := sanitizeParts(parts)
		if len(kept) == 0 {
			continue
		}
		sm := SnapshotMessage{
			Role:      m.Role,
			Seq:       m.Seq,
			Parts:     kept,
			CreatedAt: m.CreatedAt,
		}
		if m.AuthorID != nil {
			if a, ok := authors[*m.AuthorID]; ok {
				author := a
				sm.Author = &author
			}
		}
		out = append(out, sm)
	}
	return out
}

func sanitizeParts(parts []domchat.ContentPart) []domchat.ContentPart {
	kept := make([]domchat.ContentPart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case domchat.PartText:
			text := StripCitations(p.Text)
			if strings.TrimSpace(text) == "" {
				continue
			}
			kept = append(kept, domchat.ContentPart{Type: domchat.PartText, Text: text})
		case domchat.PartToolCall, domchat.PartToolResult:
			if !publicToolAllowList[p.ToolName] {
				continue
			}
			kept = append(kept, p)
		case domchat.PartAttachment:
			kept = append(kept, p)
		}
	}
	return kept
}

// BuildSnapshotPayload assembles the embedded snapshot document.
func BuildSnapshotPayload(thread *types.ChatThread, msgs []*types.ChatMessage, podcasts []*types.Podcast, authors map[uuid.UUID]SnapshotAuthor) SnapshotPayload {
	payload := SnapshotPayload{
		ThreadTitle:  thread.Title,
		StateVersion: thread.StateVersion,
		Messages:     SanitizeMessages(msgs, authors),
		Podcasts:     make([]SnapshotPodcast, 0, len(podcasts)),
	}
	for _, p := range podcasts {
		if p.Status != "ready" {
			continue
		}
		payload.Podcasts = append(payload.Podcasts, SnapshotPodcast{
			ID:     p.ID.String(),
			Title:  p.Title,
			Status: p.Status,
		})
	}
	return payload
}
