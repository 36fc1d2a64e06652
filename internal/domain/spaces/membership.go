package spaces

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Membership struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index;index:idx_membership_user_space,unique,priority:1" json:"user_id"`
	SearchSpaceID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_membership_user_space,unique,priority:2" json:"search_space_id"`

	Role    string `gorm:"column:role;not null;index" json:"role"`
	IsOwner bool   `gorm:"column:is_owner;not null;default:false" json:"is_owner"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Membership) TableName() string { return "membership" }
