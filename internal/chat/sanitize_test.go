package chat

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	domchat "github.com/surfsense/surfsense-backend/internal/domain/chat"
)

func messageWith(role string, seq int64, parts []domchat.ContentPart) *types.ChatMessage {
	raw, _ := json.Marshal(parts)
	return &types.ChatMessage{
		ID:           uuid.New(),
		ThreadID:     uuid.New(),
		Seq:          seq,
		Role:         role,
		ContentParts: datatypes.JSON(raw),
	}
}

func TestStripCitations(t *testing.T) {
	in := "Slack usage doubled [citation:doc-9f2] while email fell [citation:doc-1a0]."
	want := "Slack usage doubled  while email fell ."
	if got := StripCitations(in); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := StripCitations("no anchors"); got != "no anchors" {
		t.Fatalf("text without anchors changed: %q", got)
	}
}

func TestSanitizeMessagesFiltersToolCalls(t *testing.T) {
	msgs := []*types.ChatMessage{
		messageWith(domchat.RoleUser, 1, []domchat.ContentPart{
			{Type: domchat.PartText, Text: "what changed last week?"},
		}),
		messageWith(domchat.RoleAssistant, 2, []domchat.ContentPart{
			{Type: domchat.PartToolCall, ToolName: "search_knowledge_base"},
			{Type: domchat.PartToolCall, ToolName: "link_preview"},
			{Type: domchat.PartText, Text: "Deploys moved to Fridays [citation:doc-42]."},
		}),
		messageWith(domchat.RoleTool, 3, []domchat.ContentPart{
			{Type: domchat.PartToolResult, ToolName: "search_knowledge_base"},
		}),
	}

	out := SanitizeMessages(msgs, nil)
	if len(out) != 2 {
		t.Fatalf("expected 2 public messages, got %d", len(out))
	}

	assistant := out[1]
	if len(assistant.Parts) != 2 {
		t.Fatalf("expected retrieval tool call stripped, got %d parts", len(assistant.Parts))
	}
	if assistant.Parts[0].ToolName != "link_preview" {
		t.Fatalf("allow-listed tool dropped: %+v", assistant.Parts[0])
	}
	if assistant.Parts[1].Text != "Deploys moved to Fridays ." {
		t.Fatalf("citation not stripped: %q", assistant.Parts[1].Text)
	}
}

func TestSanitizeMessagesDropsEmptied(t *testing.T) {
	msgs := []*types.ChatMessage{
		messageWith(domchat.RoleAssistant, 1, []domchat.ContentPart{
			{Type: domchat.PartToolCall, ToolName: "search_knowledge_base"},
		}),
	}
	if out := SanitizeMessages(msgs, nil); len(out) != 0 {
		t.Fatalf("message with only stripped parts should vanish, got %d", len(out))
	}
}

func TestBuildSnapshotPayloadEmbedsAuthorsAndPodcasts(t *testing.T) {
	author := uuid.New()
	msg := messageWith(domchat.RoleUser, 1, []domchat.ContentPart{
		{Type: domchat.PartText, Text: "hello"},
	})
	msg.AuthorID = &author

	thread := &types.ChatThread{ID: uuid.New(), Title: "Weekly digest", StateVersion: 7}
	pods := []*types.Podcast{
		{ID: uuid.New(), Title: "Digest audio", Status: "ready"},
		{ID: uuid.New(), Title: "Half done", Status: "running"},
	}
	authors := map[uuid.UUID]SnapshotAuthor{author: {Name: "Sam"}}

	payload := BuildSnapshotPayload(thread, []*types.ChatMessage{msg}, pods, authors)
	if payload.StateVersion != 7 || payload.ThreadTitle != "Weekly digest" {
		t.Fatalf("thread header wrong: %+v", payload)
	}
	if len(payload.Messages) != 1 || payload.Messages[0].Author == nil || payload.Messages[0].Author.Name != "Sam" {
		t.Fatalf("author not embedded: %+v", payload.Messages)
	}
	if len(payload.Podcasts) != 1 || payload.Podcasts[0].Title != "Digest audio" {
		t.Fatalf("only ready podcasts should embed: %+v", payload.Podcasts)
	}
}
