package retrieval

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	types "github.com/surfsense/surfsense-backend/internal/domain"
)

func chunkHit(id uuid.UUID, score float64) docrepo.ChunkHit {
	return docrepo.ChunkHit{Chunk: &types.Chunk{ID: id}, Score: score}
}

func TestFuseScoresBothChannels(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	// a: dense rank 1 + lexical rank 2; b: dense rank 2 only; c: lexical
	// rank 1 only.
	dense := []docrepo.ChunkHit{chunkHit(a, 0.9), chunkHit(b, 0.8)}
	lexical := []docrepo.ChunkHit{chunkHit(c, 2.0), chunkHit(a, 1.5)}

	fused := fuse(dense, lexical)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused chunks, got %d", len(fused))
	}

	if fused[0].chunk.ID != a {
		t.Fatalf("chunk in both channels should rank first, got %s", fused[0].chunk.ID)
	}
	wantA := 1.0/float64(rrfK+1) + 1.0/float64(rrfK+2)
	if math.Abs(fused[0].score-wantA) > 1e-12 {
		t.Fatalf("score %v, want %v", fused[0].score, wantA)
	}

	// b and c sit at rank 1 and 2 of their single channels; c's lexical
	// rank 1 beats b's dense rank 2.
	if fused[1].chunk.ID != c || fused[2].chunk.ID != b {
		t.Fatalf("single-channel order wrong: %s, %s", fused[1].chunk.ID, fused[2].chunk.ID)
	}
}

func TestFuseTieBreaksOnLexicalRank(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	// Same RRF contribution (rank 1 in one channel each); the lexical hit
	// must win the tie.
	dense := []docrepo.ChunkHit{chunkHit(a, 0.9)}
	lexical := []docrepo.ChunkHit{chunkHit(b, 2.0)}

	fused := fuse(dense, lexical)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused chunks, got %d", len(fused))
	}
	if fused[0].chunk.ID != b {
		t.Fatalf("lexical hit should win the tie, got %s first", fused[0].chunk.ID)
	}
}

func TestFuseDeduplicatesWithinChannel(t *testing.T) {
	a := uuid.New()
	dense := []docrepo.ChunkHit{chunkHit(a, 0.9)}

	fused := fuse(dense, nil)
	if len(fused) != 1 {
		t.Fatalf("expected 1 fused chunk, got %d", len(fused))
	}
	want := 1.0 / float64(rrfK+1)
	if math.Abs(fused[0].score-want) > 1e-12 {
		t.Fatalf("score %v, want %v", fused[0].score, want)
	}
	if fused[0].lexRank != missingRank {
		t.Fatalf("dense-only chunk should carry no lexical rank")
	}
}

func TestMatchesFilters(t *testing.T) {
	now := time.Now()
	old := now.Add(-48 * time.Hour)
	doc := &types.Document{DocumentType: "slack", UpdatedAt: now}

	if !matchesFilters(doc, Filters{}) {
		t.Fatal("empty filters should match")
	}
	if !matchesFilters(doc, Filters{DocumentTypes: []string{"slack", "notion"}}) {
		t.Fatal("type in set should match")
	}
	if matchesFilters(doc, Filters{DocumentTypes: []string{"notion"}}) {
		t.Fatal("type outside set should not match")
	}
	if !matchesFilters(doc, Filters{UpdatedAfter: &now}) {
		t.Fatal("boundary timestamp should match")
	}
	stale := &types.Document{DocumentType: "slack", UpdatedAt: old}
	cutoff := now.Add(-time.Hour)
	if matchesFilters(stale, Filters{UpdatedAfter: &cutoff}) {
		t.Fatal("stale document should be filtered")
	}
}
