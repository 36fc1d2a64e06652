package spaces

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

type SearchSpace struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name    string    `gorm:"column:name;not null" json:"name"`
	OwnerID uuid.UUID `gorm:"type:uuid;column:owner_id;not null;index" json:"owner_id"`

	Visibility string `gorm:"column:visibility;not null;default:'private';index" json:"visibility"`

	// Per-space model selection; empty means the deployment default.
	SummaryModel string `gorm:"column:summary_model;not null;default:''" json:"summary_model,omitempty"`
	AnswerModel  string `gorm:"column:answer_model;not null;default:''" json:"answer_model,omitempty"`

	QnAInstructions  string `gorm:"column:qna_instructions;type:text;not null;default:''" json:"qna_instructions,omitempty"`
	CitationsEnabled bool   `gorm:"column:citations_enabled;not null;default:true" json:"citations_enabled"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SearchSpace) TableName() string { return "search_space" }
