package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email       string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Password    string    `gorm:"column:password;not null" json:"-"`
	DisplayName string    `gorm:"column:display_name;not null;default:''" json:"display_name"`
	AvatarURL   string    `gorm:"column:avatar_url;not null;default:''" json:"avatar_url"`

	// Page quota. Every ingested document consumes one page; ingestion
	// refuses new items once pages_used >= pages_limit.
	PagesLimit int64 `gorm:"column:pages_limit;not null;default:1000" json:"pages_limit"`
	PagesUsed  int64 `gorm:"column:pages_used;not null;default:0" json:"pages_used"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }

// IncentiveGrant records a one-shot pages_limit grant. Unique per
// (user_id, task_type) so repeat claims are idempotent.
type IncentiveGrant struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index;index:idx_incentive_user_task,unique,priority:1" json:"user_id"`
	TaskType string    `gorm:"column:task_type;not null;index:idx_incentive_user_task,unique,priority:2" json:"task_type"`
	Pages    int64     `gorm:"column:pages;not null" json:"pages"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (IncentiveGrant) TableName() string { return "incentive_grant" }
