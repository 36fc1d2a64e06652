package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/domain/documents"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:         uuid.New(),
		Email:      email,
		Password:   "pw",
		PagesLimit: 1000,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedSearchSpace(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) *types.SearchSpace {
	tb.Helper()
	s := &types.SearchSpace{
		ID:               uuid.New(),
		Name:             "space",
		OwnerID:          ownerID,
		Visibility:       "private",
		CitationsEnabled: true,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed search space: %v", err)
	}
	m := &types.Membership{
		ID:            uuid.New(),
		UserID:        ownerID,
		SearchSpaceID: s.ID,
		Role:          "owner",
		IsOwner:       true,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed owner membership: %v", err)
	}
	return s
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, spaceID, ownerID uuid.UUID, title, content string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:                   uuid.New(),
		SearchSpaceID:        spaceID,
		Title:                title,
		DocumentType:         documents.TypeFile,
		Content:              content,
		SourceMarkdown:       content,
		ContentHash:          HashHex(content),
		UniqueIdentifierHash: HashHex("file:" + title),
		DocumentMetadata:     datatypes.JSON([]byte("{}")),
		State:                documents.StateReady,
		CreatedByID:          ownerID,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, index int, content string) *types.Chunk {
	tb.Helper()
	c := &types.Chunk{
		ID:         uuid.New(),
		DocumentID: docID,
		OrderIndex: index,
		Content:    content,
		Embedding:  datatypes.JSON([]byte("[]")),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

func SeedConnector(tb testing.TB, ctx context.Context, tx *gorm.DB, spaceID, userID uuid.UUID, connectorType string) *types.Connector {
	tb.Helper()
	k := &types.Connector{
		ID:                       uuid.New(),
		SearchSpaceID:            spaceID,
		UserID:                   userID,
		ConnectorType:            connectorType,
		Name:                     connectorType + " connector",
		IndexingFrequencyMinutes: 60,
		IsActive:                 true,
		Metadata:                 datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(k).Error; err != nil {
		tb.Fatalf("seed connector: %v", err)
	}
	return k
}

func SeedThread(tb testing.TB, ctx context.Context, tx *gorm.DB, spaceID, userID uuid.UUID) *types.ChatThread {
	tb.Helper()
	th := &types.ChatThread{
		ID:            uuid.New(),
		SearchSpaceID: spaceID,
		CreatedByID:   userID,
		Title:         "thread",
		Visibility:    "private",
		LastMessageAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(th).Error; err != nil {
		tb.Fatalf("seed thread: %v", err)
	}
	return th
}

func HashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
