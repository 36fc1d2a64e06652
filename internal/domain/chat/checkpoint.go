package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AgentCheckpoint is one record of the append-only agent state log. A run
// resumes from the latest record for its thread.
type AgentCheckpoint struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_checkpoint_thread_step,unique,priority:1" json:"thread_id"`

	StepNo int64  `gorm:"column:step_no;not null;index:idx_checkpoint_thread_step,unique,priority:2" json:"step_no"`
	Node   string `gorm:"column:node;not null" json:"node"`

	StateBlob datatypes.JSON `gorm:"type:jsonb;column:state_blob;not null;default:'{}'" json:"state_blob"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (AgentCheckpoint) TableName() string { return "agent_checkpoint" }
