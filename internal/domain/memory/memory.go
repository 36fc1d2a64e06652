package memory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	CategoryPreference  = "preference"
	CategoryFact        = "fact"
	CategoryInstruction = "instruction"
	CategoryContext     = "context"
)

// UserMemory is a free-form fact with an embedding, retrieved as optional
// agent context. A memory with a search_space_id is shared within that
// space; otherwise it is personal.
type UserMemory struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	SearchSpaceID *uuid.UUID `gorm:"type:uuid;column:search_space_id;index" json:"search_space_id,omitempty"`

	Category string `gorm:"column:category;not null;default:'fact';index" json:"category"`
	Content  string `gorm:"column:content;type:text;not null" json:"content"`

	Embedding datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UserMemory) TableName() string { return "user_memory" }
