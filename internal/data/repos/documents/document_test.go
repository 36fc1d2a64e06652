package documents

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"github.com/surfsense/surfsense-backend/internal/data/repos/testutil"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
)

func TestUpsertByIdentity_ContentHashDedup(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "docs@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)

	repo := NewDocumentRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	first := &types.Document{
		SearchSpaceID:        sp.ID,
		Title:                "weekly notes",
		DocumentType:         docdomain.TypeFile,
		SourceMarkdown:       "alpha beta",
		ContentHash:          testutil.HashHex("alpha beta"),
		UniqueIdentifierHash: testutil.HashHex("file:weekly-notes"),
		DocumentMetadata:     datatypes.JSON([]byte("{}")),
		CreatedByID:          u.ID,
	}
	got, created, changed, err := repo.UpsertByIdentity(dbc, first)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created || !changed {
		t.Fatalf("expected created+changed on first ingest, got created=%v changed=%v", created, changed)
	}
	if got.State != docdomain.StatePending {
		t.Fatalf("expected pending state, got %q", got.State)
	}

	// Same owner, same content, different remote id: collapses to the row above.
	dup := &types.Document{
		SearchSpaceID:        sp.ID,
		Title:                "weekly notes copy",
		DocumentType:         docdomain.TypeFile,
		SourceMarkdown:       "alpha beta",
		ContentHash:          testutil.HashHex("alpha beta"),
		UniqueIdentifierHash: testutil.HashHex("file:weekly-notes-copy"),
		DocumentMetadata:     datatypes.JSON([]byte("{}")),
		CreatedByID:          u.ID,
	}
	got2, created, changed, err := repo.UpsertByIdentity(dbc, dup)
	if err != nil {
		t.Fatalf("duplicate upsert: %v", err)
	}
	if created || changed {
		t.Fatalf("expected no-op on duplicate content, got created=%v changed=%v", created, changed)
	}
	if got2.ID != got.ID {
		t.Fatalf("duplicate content resolved to %s, want %s", got2.ID, got.ID)
	}
}

func TestUpsertByIdentity_RemoteUpdateInPlace(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "docs2@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)

	repo := NewDocumentRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	uid := testutil.HashHex("slack:C1:169000")
	v1 := &types.Document{
		SearchSpaceID:        sp.ID,
		Title:                "thread v1",
		DocumentType:         docdomain.TypeSlack,
		SourceMarkdown:       "version one",
		ContentHash:          testutil.HashHex("version one"),
		UniqueIdentifierHash: uid,
		DocumentMetadata:     datatypes.JSON([]byte("{}")),
		CreatedByID:          u.ID,
	}
	got1, _, _, err := repo.UpsertByIdentity(dbc, v1)
	if err != nil {
		t.Fatalf("v1 upsert: %v", err)
	}
	if err := repo.SetState(dbc, got1.ID, docdomain.StateReady, ""); err != nil {
		t.Fatalf("set ready: %v", err)
	}

	v2 := &types.Document{
		SearchSpaceID:        sp.ID,
		Title:                "thread v2",
		DocumentType:         docdomain.TypeSlack,
		SourceMarkdown:       "version two",
		ContentHash:          testutil.HashHex("version two"),
		UniqueIdentifierHash: uid,
		DocumentMetadata:     datatypes.JSON([]byte("{}")),
		CreatedByID:          u.ID,
	}
	got2, created, changed, err := repo.UpsertByIdentity(dbc, v2)
	if err != nil {
		t.Fatalf("v2 upsert: %v", err)
	}
	if created {
		t.Fatalf("expected in-place update, got a new row")
	}
	if !changed {
		t.Fatalf("expected changed=true when remote content moved")
	}
	if got2.ID != got1.ID {
		t.Fatalf("remote update resolved to %s, want %s", got2.ID, got1.ID)
	}
	if got2.State != docdomain.StatePending {
		t.Fatalf("updated document should be re-queued, state=%q", got2.State)
	}
	if got2.Title != "thread v2" || got2.ContentHash != testutil.HashHex("version two") {
		t.Fatalf("in-place update did not take: %+v", got2)
	}
}

func TestUpsertByIdentity_DeleteThenReingest(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "docs3@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)

	repo := NewDocumentRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	uid := testutil.HashHex("notion:page-42")
	first := &types.Document{
		SearchSpaceID:        sp.ID,
		Title:                "roadmap",
		DocumentType:         docdomain.TypeNotion,
		SourceMarkdown:       "q3 plans",
		ContentHash:          testutil.HashHex("q3 plans"),
		UniqueIdentifierHash: uid,
		DocumentMetadata:     datatypes.JSON([]byte("{}")),
		CreatedByID:          u.ID,
	}
	got1, _, _, err := repo.UpsertByIdentity(dbc, first)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.Delete(dbc, got1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// The soft-deleted row must not satisfy either identity nor the unique
	// indexes; re-ingesting the same remote item creates a fresh document.
	again := &types.Document{
		SearchSpaceID:        sp.ID,
		Title:                "roadmap",
		DocumentType:         docdomain.TypeNotion,
		SourceMarkdown:       "q3 plans",
		ContentHash:          testutil.HashHex("q3 plans"),
		UniqueIdentifierHash: uid,
		DocumentMetadata:     datatypes.JSON([]byte("{}")),
		CreatedByID:          u.ID,
	}
	got2, created, changed, err := repo.UpsertByIdentity(dbc, again)
	if err != nil {
		t.Fatalf("re-ingest after delete: %v", err)
	}
	if !created || !changed {
		t.Fatalf("expected a fresh row after delete, got created=%v changed=%v", created, changed)
	}
	if got2.ID == got1.ID {
		t.Fatalf("re-ingest resurrected the deleted row %s", got1.ID)
	}
}

func TestReplaceForDocument(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "chunks@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)
	doc := testutil.SeedDocument(t, ctx, tx, sp.ID, u.ID, "doc", "body")

	repo := NewChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	set1 := []*types.Chunk{
		{Content: "one", Embedding: datatypes.JSON([]byte("[]"))},
		{Content: "two", Embedding: datatypes.JSON([]byte("[]"))},
		{Content: "three", Embedding: datatypes.JSON([]byte("[]"))},
	}
	if err := repo.ReplaceForDocument(dbc, doc.ID, set1); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	set2 := []*types.Chunk{
		{Content: "uno", Embedding: datatypes.JSON([]byte("[]"))},
		{Content: "dos", Embedding: datatypes.JSON([]byte("[]"))},
	}
	if err := repo.ReplaceForDocument(dbc, doc.ID, set2); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := repo.ListByDocument(dbc, doc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks after replace, got %d", len(got))
	}
	if got[0].Content != "uno" || got[0].OrderIndex != 0 {
		t.Fatalf("unexpected first chunk: %+v", got[0])
	}
	if got[1].Content != "dos" || got[1].OrderIndex != 1 {
		t.Fatalf("unexpected second chunk: %+v", got[1])
	}
}

func TestSearchLexical(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "search@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)
	doc := testutil.SeedDocument(t, ctx, tx, sp.ID, u.ID, "deployment runbook", "ops doc")
	testutil.SeedChunk(t, ctx, tx, doc.ID, 0, "rollback the deployment with the blue green switch")
	testutil.SeedChunk(t, ctx, tx, doc.ID, 1, "unrelated grocery list apples and oranges")

	repo := NewChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	hits, err := repo.SearchLexical(dbc, sp.ID, "rollback deployment", 10)
	if err != nil {
		t.Fatalf("lexical search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected at least one lexical hit")
	}
	if hits[0].Chunk.OrderIndex != 0 {
		t.Fatalf("expected the rollback chunk first, got order_index=%d", hits[0].Chunk.OrderIndex)
	}
}

func TestSearchDense(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "dense@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)
	doc := testutil.SeedDocument(t, ctx, tx, sp.ID, u.ID, "vectors", "doc")

	near := &types.Chunk{DocumentID: doc.ID, OrderIndex: 0, Content: "near", Embedding: EncodeEmbeddingJSON([]float32{1, 0, 0})}
	far := &types.Chunk{DocumentID: doc.ID, OrderIndex: 1, Content: "far", Embedding: EncodeEmbeddingJSON([]float32{0, 1, 0})}
	if err := tx.WithContext(ctx).Create(near).Error; err != nil {
		t.Fatalf("seed near: %v", err)
	}
	if err := tx.WithContext(ctx).Create(far).Error; err != nil {
		t.Fatalf("seed far: %v", err)
	}

	repo := NewChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	hits, err := repo.SearchDense(dbc, sp.ID, []float32{0.9, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("dense search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.Content != "near" {
		t.Fatalf("expected the aligned vector first, got %q", hits[0].Chunk.Content)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores not ordered: %v vs %v", hits[0].Score, hits[1].Score)
	}
}
