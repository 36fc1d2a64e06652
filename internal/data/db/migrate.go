package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&types.User{},
		&types.RefreshToken{},
		&types.IncentiveGrant{},

		&types.SearchSpace{},
		&types.Membership{},
		&types.InviteCode{},

		&types.Document{},
		&types.Chunk{},
		&types.Connector{},

		&types.ChatThread{},
		&types.ChatMessage{},
		&types.Comment{},
		&types.Mention{},
		&types.PublicChatSnapshot{},
		&types.Podcast{},
		&types.AgentCheckpoint{},

		&types.Notification{},
		&types.UserMemory{},
		&types.JobRun{},
	); err != nil {
		return err
	}
	return createSearchIndexes(db)
}

// createSearchIndexes installs the indexes AutoMigrate cannot express: a
// GIN full-text index over chunk content, a trigram index on document
// titles, and the partial unique dedup indexes. The identity indexes cover
// live rows only so a soft-deleted document never blocks re-ingesting the
// same content or remote item.
func createSearchIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_chunk_content_fts
			ON chunk USING GIN (to_tsvector('english', content));`,
		`CREATE INDEX IF NOT EXISTS idx_document_title_trgm
			ON document USING GIN (title gin_trgm_ops);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_document_owner_content_hash
			ON document (created_by_id, content_hash) WHERE deleted_at IS NULL;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_document_space_uid_hash
			ON document (search_space_id, unique_identifier_hash) WHERE deleted_at IS NULL;`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create search index: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	return AutoMigrateAll(s.db)
}
