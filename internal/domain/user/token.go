package user

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one member of a rotating refresh-token family. Rotation
// inserts a new row with the same family_id and marks the old row rotated.
// Presenting a rotated or revoked token is reuse and revokes the family.
type RefreshToken struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	FamilyID uuid.UUID `gorm:"type:uuid;not null;index" json:"family_id"`

	// SHA-256 hex of the opaque token; the token itself is never stored.
	TokenHash string `gorm:"column:token_hash;not null;uniqueIndex" json:"-"`

	RotatedAt *time.Time `gorm:"column:rotated_at;index" json:"rotated_at,omitempty"`
	RevokedAt *time.Time `gorm:"column:revoked_at;index" json:"revoked_at,omitempty"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null;index" json:"expires_at"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (RefreshToken) TableName() string { return "refresh_token" }
