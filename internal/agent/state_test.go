package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	domchat "github.com/surfsense/surfsense-backend/internal/domain/chat"
)

func historyMsg(role string, texts ...string) *types.ChatMessage {
	parts := make([]domchat.ContentPart, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, domchat.ContentPart{Type: domchat.PartText, Text: t})
	}
	raw, _ := json.Marshal(parts)
	return &types.ChatMessage{
		ID:           uuid.New(),
		Role:         role,
		ContentParts: datatypes.JSON(raw),
	}
}

func TestHistoryFromMessagesSkipsNonText(t *testing.T) {
	toolParts, _ := json.Marshal([]domchat.ContentPart{
		{Type: domchat.PartToolResult, ToolName: "link_preview"},
	})
	msgs := []*types.ChatMessage{
		historyMsg(domchat.RoleUser, "what broke last night?"),
		{ID: uuid.New(), Role: domchat.RoleTool, ContentParts: datatypes.JSON(toolParts)},
		historyMsg(domchat.RoleAssistant, "The deploy at 2am", "rolled back at 3am"),
	}

	out := historyFromMessages(msgs, 0)
	if len(out) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(out))
	}
	if out[0].Role != domchat.RoleUser || out[0].Text != "what broke last night?" {
		t.Fatalf("unexpected first turn: %+v", out[0])
	}
	if out[1].Text != "The deploy at 2am\nrolled back at 3am" {
		t.Fatalf("text parts not joined: %q", out[1].Text)
	}
}

func TestHistoryFromMessagesKeepsTail(t *testing.T) {
	var msgs []*types.ChatMessage
	for _, text := range []string{"one", "two", "three", "four"} {
		msgs = append(msgs, historyMsg(domchat.RoleUser, text))
	}
	out := historyFromMessages(msgs, 2)
	if len(out) != 2 || out[0].Text != "three" || out[1].Text != "four" {
		t.Fatalf("expected last two turns, got %+v", out)
	}
}

func TestStateEncodeDecodeRoundTrip(t *testing.T) {
	in := &State{
		Query:   "summarize the launch retro",
		History: []HistoryMessage{{Role: "user", Text: "hi"}},
		Retrieved: []RetrievedDoc{
			{DocumentID: uuid.New(), Title: "Retro notes", Excerpt: "went fine"},
		},
		Tools:       []ToolOutcome{{Tool: "link_preview", Error: "http 404"}},
		PartialText: "The retro covered",
	}

	raw, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeState(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Query != in.Query || out.PartialText != in.PartialText {
		t.Fatalf("scalar fields lost: %+v", out)
	}
	if len(out.Retrieved) != 1 || out.Retrieved[0].DocumentID != in.Retrieved[0].DocumentID {
		t.Fatalf("retrieved docs lost: %+v", out.Retrieved)
	}
	if len(out.Tools) != 1 || out.Tools[0].Error != "http 404" {
		t.Fatalf("tool outcomes lost: %+v", out.Tools)
	}
}

func TestDecodeStateEmpty(t *testing.T) {
	out, err := DecodeState(nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Query != "" || len(out.History) != 0 {
		t.Fatalf("empty blob should decode to zero state: %+v", out)
	}
}

func TestContextBlockCarriesAnchors(t *testing.T) {
	id := uuid.New()
	block := contextBlock([]RetrievedDoc{{DocumentID: id, Title: "Runbook", Excerpt: "restart the worker"}})
	if !strings.Contains(block, CitationAnchor(id)) {
		t.Fatalf("anchor missing from block: %q", block)
	}
	if !strings.Contains(block, "Runbook") || !strings.Contains(block, "restart the worker") {
		t.Fatalf("title or excerpt missing: %q", block)
	}
	if contextBlock(nil) != "" {
		t.Fatal("empty retrieval should render nothing")
	}
}

func TestChunkExcerptTruncates(t *testing.T) {
	long := strings.Repeat("a", excerptPerChunk+200)
	got := chunkExcerpt([]*types.Chunk{{Content: long}})
	if len([]rune(got)) != excerptPerChunk {
		t.Fatalf("excerpt not truncated: %d runes", len([]rune(got)))
	}

	got = chunkExcerpt([]*types.Chunk{{Content: "first"}, {Content: "second"}})
	if got != "first\nsecond" {
		t.Fatalf("chunks not joined: %q", got)
	}
}
