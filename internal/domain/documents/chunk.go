package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Chunk is an ordered slice of a Document used for fine-grained retrieval.
// Chunks are immutable for a given document version; reindexing deletes and
// rewrites the whole set in one transaction.
type Chunk struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chunk_document_order,unique,priority:1" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	OrderIndex int    `gorm:"column:order_index;not null;index:idx_chunk_document_order,unique,priority:2" json:"order_index"`
	Content    string `gorm:"column:content;type:text;not null" json:"content"`

	Embedding datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Chunk) TableName() string { return "chunk" }
