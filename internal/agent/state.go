package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	domchat "github.com/surfsense/surfsense-backend/internal/domain/chat"
)

// Node names recorded in the checkpoint log.
const (
	NodeBootstrap = "bootstrap"
	NodeRoute     = "route"
	NodeRetrieve  = "retrieve"
	NodeTool      = "tool"
	NodeAnswer    = "answer"
)

// HistoryMessage is one prior turn carried in agent state.
type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// RetrievedDoc is one retrieval result pinned into the run's context with a
// stable citation anchor.
type RetrievedDoc struct {
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	Excerpt    string    `json:"excerpt"`
}

// ToolOutcome records one executed tool call.
type ToolOutcome struct {
	Tool   string          `json:"tool"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// State is the serialized agent state; one snapshot per checkpoint record.
type State struct {
	Query       string           `json:"query"`
	History     []HistoryMessage `json:"history,omitempty"`
	Retrieved   []RetrievedDoc   `json:"retrieved,omitempty"`
	Tools       []ToolOutcome    `json:"tools,omitempty"`
	PartialText string           `json:"partial_text,omitempty"`
}

func (s *State) Encode() (datatypes.JSON, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode agent state: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func DecodeState(raw datatypes.JSON) (*State, error) {
	var s State
	if len(raw) == 0 {
		return &s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode agent state: %w", err)
	}
	return &s, nil
}

// CitationAnchor is the inline marker format the answer model is told to
// emit and the sanitizer later strips for public views.
func CitationAnchor(documentID uuid.UUID) string {
	return fmt.Sprintf("[citation:doc-%s]", documentID)
}

// historyFromMessages flattens persisted messages into state history,
// keeping the most recent maxTurns user/assistant text turns.
func historyFromMessages(msgs []*types.ChatMessage, maxTurns int) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != domchat.RoleUser && m.Role != domchat.RoleAssistant {
			continue
		}
		var parts []domchat.ContentPart
		if err := json.Unmarshal(m.ContentParts, &parts); err != nil {
			continue
		}
		var b strings.Builder
		for _, p := range parts {
			if p.Type == domchat.PartText && p.Text != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(p.Text)
			}
		}
		if b.Len() == 0 {
			continue
		}
		out = append(out, HistoryMessage{Role: m.Role, Text: b.String()})
	}
	if maxTurns > 0 && len(out) > maxTurns {
		out = out[len(out)-maxTurns:]
	}
	return out
}

// contextBlock renders retrieved documents for the answer prompt, each
// labelled with its citation anchor.
func contextBlock(docs []RetrievedDoc) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&b, "Source %s (%s):\n%s\n\n", CitationAnchor(d.DocumentID), d.Title, d.Excerpt)
	}
	return strings.TrimSpace(b.String())
}
