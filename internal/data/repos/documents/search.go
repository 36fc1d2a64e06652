package documents

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
)

// ChunkHit is one scored chunk candidate from a single retrieval channel.
type ChunkHit struct {
	Chunk *types.Chunk
	Score float64
}

// ParseEmbeddingJSON decodes a jsonb float array column into a dense vector.
func ParseEmbeddingJSON(raw datatypes.JSON) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []float32
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeEmbeddingJSON is the inverse of ParseEmbeddingJSON.
func EncodeEmbeddingJSON(emb []float32) datatypes.JSON {
	if len(emb) == 0 {
		return datatypes.JSON([]byte("[]"))
	}
	b, err := json.Marshal(emb)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(b)
}

// Cosine returns cosine similarity of two equal-length vectors.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// denseScanLimit caps how many recent chunks the SQL fallback scores in Go.
const denseScanLimit = 1200

// SearchDense scores recent chunk embeddings against the query vector in Go.
// Used when no vector store is configured; fine at personal-knowledge-base
// scale, the Qdrant path takes over beyond that.
func (r *chunkRepo) SearchDense(dbc dbctx.Context, spaceID uuid.UUID, qEmb []float32, limit int) ([]ChunkHit, error) {
	if spaceID == uuid.Nil {
		return nil, fmt.Errorf("missing search_space_id")
	}
	if len(qEmb) == 0 || limit <= 0 {
		return nil, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}

	var rows []*types.Chunk
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Joins("JOIN document ON chunk.document_id = document.id").
		Where("document.search_space_id = ? AND document.deleted_at IS NULL AND document.state = 'ready'", spaceID).
		Where("chunk.embedding IS NOT NULL AND chunk.embedding <> '[]'::jsonb").
		Order("chunk.created_at DESC").
		Limit(denseScanLimit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	hits := make([]ChunkHit, 0, len(rows))
	for _, ch := range rows {
		if ch == nil || ch.ID == uuid.Nil {
			continue
		}
		emb, err := ParseEmbeddingJSON(ch.Embedding)
		if err != nil || len(emb) != len(qEmb) {
			continue
		}
		hits = append(hits, ChunkHit{Chunk: ch, Score: Cosine(qEmb, emb)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchLexical ranks chunks with Postgres full-text search, boosted by
// trigram similarity of the parent document title.
func (r *chunkRepo) SearchLexical(dbc dbctx.Context, spaceID uuid.UUID, query string, limit int) ([]ChunkHit, error) {
	if spaceID == uuid.Nil {
		return nil, fmt.Errorf("missing search_space_id")
	}
	if query == "" || limit <= 0 {
		return nil, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}

	sql := fmt.Sprintf(`
		SELECT chunk.*,
		       ts_rank(to_tsvector('english', chunk.content), plainto_tsquery('english', ?))
		       + 0.15 * similarity(document.title, ?) AS rank
		FROM chunk
		JOIN document ON chunk.document_id = document.id
		WHERE document.search_space_id = ?
			AND document.deleted_at IS NULL
			AND document.state = 'ready'
			AND (
				to_tsvector('english', chunk.content) @@ plainto_tsquery('english', ?)
				OR similarity(document.title, ?) > 0.3
			)
		ORDER BY rank DESC, chunk.created_at DESC
		LIMIT %d;
	`, limit)

	type row struct {
		types.Chunk
		Rank float64 `gorm:"column:rank"`
	}
	var rows []row
	if err := txx.WithContext(dbc.Ctx).
		Raw(sql, query, query, spaceID, query, query).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	hits := make([]ChunkHit, 0, len(rows))
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			continue
		}
		ch := rows[i].Chunk
		hits = append(hits, ChunkHit{Chunk: &ch, Score: rows[i].Rank})
	}
	return hits, nil
}
