package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Content part discriminators for the polymorphic message body.
const (
	PartText       = "text"
	PartToolCall   = "tool_call"
	PartToolResult = "tool_result"
	PartAttachment = "attachment"
)

// ContentPart is one element of a message body. Exactly the fields for its
// Type are set; the rest stay empty.
type ContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Ref      string          `json:"ref,omitempty"`
}

type ChatMessage struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_message_thread_seq,unique,priority:1" json:"thread_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_thread_seq,unique,priority:2" json:"seq"`

	Role string `gorm:"column:role;not null;index" json:"role"`

	// AuthorID is nil for assistant/system messages.
	AuthorID *uuid.UUID `gorm:"type:uuid;column:author_id;index" json:"author_id,omitempty"`

	// ContentParts is a JSON array of ContentPart.
	ContentParts datatypes.JSON `gorm:"type:jsonb;column:content_parts;not null;default:'[]'" json:"content_parts"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ChatMessage) TableName() string { return "chat_message" }

// Parts decodes the message body. A malformed body decodes to nil.
func (m *ChatMessage) Parts() []ContentPart {
	if m == nil || len(m.ContentParts) == 0 {
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(m.ContentParts, &parts); err != nil {
		return nil
	}
	return parts
}

// EncodeParts serializes parts into the stored JSON column.
func EncodeParts(parts []ContentPart) (datatypes.JSON, error) {
	if parts == nil {
		parts = []ContentPart{}
	}
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
