package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment is threaded discussion under an assistant message. All comments
// live in one table keyed by (message_id, parent_id); the tree is resolved
// at read time. ThreadID is denormalized for per-thread subscription.
type Comment struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MessageID uuid.UUID  `gorm:"type:uuid;not null;index" json:"message_id"`
	ThreadID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"thread_id"`
	ParentID  *uuid.UUID `gorm:"type:uuid;column:parent_id;index" json:"parent_id,omitempty"`
	AuthorID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"author_id"`

	Content string `gorm:"column:content;type:text;not null" json:"content"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Comment) TableName() string { return "comment" }

// Mention is one resolved @[uuid] token inside a comment.
type Mention struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CommentID       uuid.UUID `gorm:"type:uuid;not null;index" json:"comment_id"`
	MentionedUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"mentioned_user_id"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Mention) TableName() string { return "mention" }
