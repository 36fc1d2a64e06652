package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ThreadVisibilityPrivate = "private"
	ThreadVisibilitySpace   = "space"
)

type ChatThread struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SearchSpaceID uuid.UUID `gorm:"type:uuid;not null;index" json:"search_space_id"`
	CreatedByID   uuid.UUID `gorm:"type:uuid;column:created_by_id;not null;index" json:"created_by_id"`

	Title      string `gorm:"column:title;not null;default:'New Chat'" json:"title"`
	Visibility string `gorm:"column:visibility;not null;default:'private';index" json:"visibility"`

	// Concurrency-safe per-thread message sequencing.
	NextSeq int64 `gorm:"column:next_seq;not null;default:0" json:"next_seq"`

	// StateVersion increments on any message append or edit. Downstream
	// artifacts record the version they were derived from so staleness is
	// detectable.
	StateVersion int64 `gorm:"column:state_version;not null;default:0" json:"state_version"`

	PublicShareToken   string `gorm:"column:public_share_token;not null;default:'';index" json:"public_share_token,omitempty"`
	PublicShareEnabled bool   `gorm:"column:public_share_enabled;not null;default:false" json:"public_share_enabled"`

	ClonedFromThreadID    *uuid.UUID `gorm:"type:uuid;column:cloned_from_thread_id;index" json:"cloned_from_thread_id,omitempty"`
	ClonePending          bool       `gorm:"column:clone_pending;not null;default:false" json:"clone_pending"`
	NeedsHistoryBootstrap bool       `gorm:"column:needs_history_bootstrap;not null;default:false" json:"needs_history_bootstrap"`

	// Active agent run slot. One run per thread; a run whose heartbeat has
	// expired is abandoned and the slot may be taken over.
	RunStartedAt   *time.Time `gorm:"column:run_started_at" json:"run_started_at,omitempty"`
	RunHeartbeatAt *time.Time `gorm:"column:run_heartbeat_at" json:"run_heartbeat_at,omitempty"`

	LastMessageAt time.Time `gorm:"column:last_message_at;not null;default:now();index" json:"last_message_at"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ChatThread) TableName() string { return "chat_thread" }
