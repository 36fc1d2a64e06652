package notify

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification is created write-side by any component; a replication
// forwarder streams inserts and updates to the owning user's clients in
// commit order.
type Notification struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Type    string `gorm:"column:type;not null;index" json:"type"`
	Title   string `gorm:"column:title;not null" json:"title"`
	Message string `gorm:"column:message;not null;default:''" json:"message"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	Read     bool `gorm:"column:read;not null;default:false;index" json:"read"`
	Archived bool `gorm:"column:archived;not null;default:false;index" json:"archived"`

	SearchSpaceID *uuid.UUID `gorm:"type:uuid;column:search_space_id;index" json:"search_space_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Notification) TableName() string { return "notification" }
