package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document lifecycle states.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateReady      = "ready"
	StateFailed     = "failed"
)

// Document types, one per source kind plus uploads and editor-native docs.
const (
	TypeFile           = "file"
	TypeNote           = "note"
	TypeSlack          = "slack"
	TypeGithub         = "github"
	TypeNotion         = "notion"
	TypeJira           = "jira"
	TypeLinear         = "linear"
	TypeConfluence     = "confluence"
	TypeDiscord        = "discord"
	TypeGmail          = "gmail"
	TypeGoogleDrive    = "google_drive"
	TypeGoogleCalendar = "google_calendar"
	TypeClickup        = "clickup"
	TypeAirtable       = "airtable"
	TypeZulip          = "zulip"
	TypeWebcrawler     = "webcrawler"
)

type Document struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SearchSpaceID uuid.UUID `gorm:"type:uuid;not null;index" json:"search_space_id"`

	Title        string `gorm:"column:title;not null" json:"title"`
	DocumentType string `gorm:"column:document_type;not null;index" json:"document_type"`

	// Content is the LLM-generated summary; chunks retain the original text.
	Content        string `gorm:"column:content;type:text;not null;default:''" json:"content"`
	SourceMarkdown string `gorm:"column:source_markdown;type:text" json:"source_markdown,omitempty"`

	// Structured editor JSON for documents edited in the UI.
	BlocknoteDocument datatypes.JSON `gorm:"type:jsonb;column:blocknote_document" json:"blocknote_document,omitempty"`

	// SHA-256 hex of the normalized content; unique per owning user so
	// duplicate ingest collapses to one row. Uniqueness is enforced by a
	// partial index over live rows (see createSearchIndexes) so deleted
	// documents never block re-ingest.
	ContentHash string `gorm:"column:content_hash;not null;index" json:"content_hash"`

	// SHA-256 of connector_type || stable remote id; unique per space for
	// idempotent re-ingest. Same partial-index treatment as content_hash.
	UniqueIdentifierHash string `gorm:"column:unique_identifier_hash;not null;index" json:"unique_identifier_hash"`

	// Dense vector of the summary, stored as a JSON float array.
	Embedding datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`

	DocumentMetadata datatypes.JSON `gorm:"type:jsonb;column:document_metadata;not null;default:'{}'" json:"document_metadata,omitempty"`

	State      string `gorm:"column:state;not null;default:'pending';index" json:"state"`
	StateError string `gorm:"column:state_error;not null;default:''" json:"state_error,omitempty"`

	ContentNeedsReindexing bool `gorm:"column:content_needs_reindexing;not null;default:false;index" json:"content_needs_reindexing"`

	CreatedByID uuid.UUID `gorm:"type:uuid;column:created_by_id;not null;index" json:"created_by_id"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
