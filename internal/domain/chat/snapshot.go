package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PublicChatSnapshot is an immutable, sanitized copy of a thread at a point
// in time. The payload embeds everything a public reader needs (messages
// with citation anchors stripped, whitelisted tool calls, author display
// data, podcast references) so no back-end joins are required.
type PublicChatSnapshot struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index" json:"thread_id"`

	ShareToken string `gorm:"column:share_token;not null;uniqueIndex" json:"share_token"`

	Payload datatypes.JSON `gorm:"type:jsonb;column:payload;not null" json:"payload"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (PublicChatSnapshot) TableName() string { return "public_chat_snapshot" }

// Podcast is a long-running generated artifact tied to a thread. Generation
// returns a task handle immediately; clients poll status or subscribe via
// notifications.
type Podcast struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index" json:"thread_id"`

	Title      string `gorm:"column:title;not null;default:''" json:"title"`
	Transcript string `gorm:"column:transcript;type:text;not null;default:''" json:"transcript,omitempty"`

	// Object-store key of the rendered audio.
	FileRef string `gorm:"column:file_ref;not null;default:''" json:"file_ref,omitempty"`

	Status string `gorm:"column:status;not null;default:'pending';index" json:"status"`

	// Thread state_version this podcast was derived from; the UI flags
	// staleness when the thread advances past it.
	DerivedStateVersion int64 `gorm:"column:derived_state_version;not null;default:0" json:"derived_state_version"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Podcast) TableName() string { return "podcast" }
