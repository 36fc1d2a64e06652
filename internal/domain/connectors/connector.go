package connectors

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Connector is one configured adapter to a third-party source; one logical
// indexable account. (search_space_id, user_id, connector_type, name) is
// unique per space.
type Connector struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SearchSpaceID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_connector_identity,unique,priority:1" json:"search_space_id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index;index:idx_connector_identity,unique,priority:2" json:"user_id"`

	ConnectorType string `gorm:"column:connector_type;not null;index;index:idx_connector_identity,unique,priority:3" json:"connector_type"`
	Name          string `gorm:"column:name;not null;index:idx_connector_identity,unique,priority:4" json:"name"`

	// Vault-encrypted credential blob (API key or OAuth token JSON).
	Credentials string `gorm:"column:credentials;type:text;not null;default:''" json:"-"`

	PeriodicIndexingEnabled  bool       `gorm:"column:periodic_indexing_enabled;not null;default:false;index" json:"periodic_indexing_enabled"`
	IndexingFrequencyMinutes int        `gorm:"column:indexing_frequency_minutes;not null;default:60" json:"indexing_frequency_minutes"`
	NextScheduledAt          *time.Time `gorm:"column:next_scheduled_at;index" json:"next_scheduled_at,omitempty"`

	// Watermark: high-water timestamp for incremental ingest.
	LastIndexedAt *time.Time `gorm:"column:last_indexed_at;index" json:"last_indexed_at,omitempty"`

	IsActive bool `gorm:"column:is_active;not null;default:true;index" json:"is_active"`

	LastRunStatus string         `gorm:"column:last_run_status;not null;default:''" json:"last_run_status,omitempty"`
	LastRunError  string         `gorm:"column:last_run_error;not null;default:''" json:"last_run_error,omitempty"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now();index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Connector) TableName() string { return "connector" }
