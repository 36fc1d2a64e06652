package spaces

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InviteCode grants a role on acceptance. Optional expiry and max-uses.
type InviteCode struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SearchSpaceID uuid.UUID `gorm:"type:uuid;not null;index" json:"search_space_id"`
	Code          string    `gorm:"column:code;not null;uniqueIndex" json:"code"`
	Role          string    `gorm:"column:role;not null" json:"role"`

	ExpiresAt *time.Time `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	MaxUses   int        `gorm:"column:max_uses;not null;default:0" json:"max_uses"`
	Uses      int        `gorm:"column:uses;not null;default:0" json:"uses"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (InviteCode) TableName() string { return "invite_code" }
