package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domdocs "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/ingest"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/qdrant"
)

// rrfK is the reciprocal-rank-fusion constant: score = sum 1/(rrfK + rank).
const rrfK = 60

const (
	defaultTopK   = 10
	maxTopK       = 50
	candidateMult = 4
)

// Filters narrows a search at the document level.
type Filters struct {
	DocumentTypes  []string
	ConnectorTypes []string
	UpdatedAfter   *time.Time
}

// RankedDocument is one search result: the parent document, its combined
// score, and the matching chunks in fused-rank order.
type RankedDocument struct {
	Document *types.Document
	Score    float64
	Chunks   []*types.Chunk
}

// Reranker reorders grouped results by relevance to the query. Errors fall
// back to the fused order.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []*RankedDocument) ([]*RankedDocument, error)
}

// Retriever fuses dense and lexical chunk retrieval with reciprocal rank
// fusion and groups the winners by document.
type Retriever struct {
	documents docrepo.DocumentRepo
	chunks    docrepo.ChunkRepo
	embedder  *ingest.Embedder
	vectors   qdrant.VectorStore
	reranker  Reranker
	log       *logger.Logger
}

// NewRetriever wires the search path. vectors and reranker may be nil.
func NewRetriever(
	documents docrepo.DocumentRepo,
	chunks docrepo.ChunkRepo,
	embedder *ingest.Embedder,
	vectors qdrant.VectorStore,
	reranker Reranker,
	log *logger.Logger,
) *Retriever {
	return &Retriever{
		documents: documents,
		chunks:    chunks,
		embedder:  embedder,
		vectors:   vectors,
		reranker:  reranker,
		log:       log.With("component", "HybridRetriever"),
	}
}

// Search runs the hybrid query and returns at most k ranked documents.
func (r *Retriever) Search(ctx context.Context, spaceID uuid.UUID, query string, filters Filters, k int) ([]*RankedDocument, error) {
	if spaceID == uuid.Nil {
		return nil, fmt.Errorf("missing search_space_id")
	}
	if query == "" {
		return []*RankedDocument{}, nil
	}
	if k <= 0 {
		k = defaultTopK
	}
	if k > maxTopK {
		k = maxTopK
	}
	candidates := k * candidateMult

	qEmb, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	dbc := dbctx.Context{Ctx: ctx}
	denseHits, err := r.denseHits(ctx, spaceID, qEmb, candidates)
	if err != nil {
		return nil, err
	}
	lexicalHits, err := r.chunks.SearchLexical(dbc, spaceID, query, candidates)
	if err != nil {
		return nil, err
	}

	fused := fuse(denseHits, lexicalHits)
	if len(fused) > candidates {
		fused = fused[:candidates]
	}
	if len(fused) == 0 {
		return []*RankedDocument{}, nil
	}

	ranked, err := r.groupByDocument(dbc, fused, filters)
	if err != nil {
		return nil, err
	}

	if r.reranker != nil && len(ranked) > 1 {
		reranked, err := r.reranker.Rerank(ctx, query, ranked)
		if err != nil {
			r.log.Warn("rerank failed, keeping fused order", "error", err)
		} else {
			ranked = reranked
		}
	}

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// denseHits prefers the vector store and falls back to the SQL scorer when
// the store is absent or errors.
func (r *Retriever) denseHits(ctx context.Context, spaceID uuid.UUID, qEmb []float32, limit int) ([]docrepo.ChunkHit, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if r.vectors == nil {
		return r.chunks.SearchDense(dbc, spaceID, qEmb, limit)
	}

	matches, err := r.vectors.QueryMatches(ctx, spaceID.String(), qEmb, limit)
	if err != nil {
		r.log.Warn("vector store query failed, falling back to SQL", "error", err)
		return r.chunks.SearchDense(dbc, spaceID, qEmb, limit)
	}

	ids := make([]uuid.UUID, 0, len(matches))
	scores := make(map[uuid.UUID]float64, len(matches))
	for _, m := range matches {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		scores[id] = m.Score
	}
	rows, err := r.chunks.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Chunk, len(rows))
	for _, ch := range rows {
		byID[ch.ID] = ch
	}

	hits := make([]docrepo.ChunkHit, 0, len(ids))
	for _, id := range ids {
		ch, ok := byID[id]
		if !ok {
			continue
		}
		hits = append(hits, docrepo.ChunkHit{Chunk: ch, Score: scores[id]})
	}
	return hits, nil
}

// fusedChunk carries the RRF score plus the lexical rank used as tie-break.
type fusedChunk struct {
	chunk   *types.Chunk
	score   float64
	lexRank int
}

const missingRank = 1 << 30

// fuse merges the two ranked channels with reciprocal rank fusion. Output is
// sorted score-descending; ties break on better lexical rank, then chunk id.
func fuse(dense, lexical []docrepo.ChunkHit) []fusedChunk {
	byID := map[uuid.UUID]*fusedChunk{}

	add := func(hits []docrepo.ChunkHit, lexicalChannel bool) {
		for i, hit := range hits {
			if hit.Chunk == nil || hit.Chunk.ID == uuid.Nil {
				continue
			}
			rank := i + 1
			f, ok := byID[hit.Chunk.ID]
			if !ok {
				f = &fusedChunk{chunk: hit.Chunk, lexRank: missingRank}
				byID[hit.Chunk.ID] = f
			}
			f.score += 1.0 / float64(rrfK+rank)
			if lexicalChannel && rank < f.lexRank {
				f.lexRank = rank
			}
		}
	}
	add(dense, false)
	add(lexical, true)

	out := make([]fusedChunk, 0, len(byID))
	for _, f := range byID {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].lexRank != out[j].lexRank {
			return out[i].lexRank < out[j].lexRank
		}
		return out[i].chunk.ID.String() < out[j].chunk.ID.String()
	})
	return out
}

// groupByDocument sums chunk scores per document, applies the filters, and
// orders documents by combined score with the spec'd deterministic
// tie-break.
func (r *Retriever) groupByDocument(dbc dbctx.Context, fused []fusedChunk, filters Filters) ([]*RankedDocument, error) {
	type group struct {
		score   float64
		lexRank int
		chunks  []*types.Chunk
	}
	groups := map[uuid.UUID]*group{}
	order := make([]uuid.UUID, 0)

	for _, f := range fused {
		docID := f.chunk.DocumentID
		g, ok := groups[docID]
		if !ok {
			g = &group{lexRank: missingRank}
			groups[docID] = g
			order = append(order, docID)
		}
		g.score += f.score
		if f.lexRank < g.lexRank {
			g.lexRank = f.lexRank
		}
		g.chunks = append(g.chunks, f.chunk)
	}

	docs, err := r.documents.GetByIDs(dbc, order)
	if err != nil {
		return nil, err
	}
	docByID := make(map[uuid.UUID]*types.Document, len(docs))
	for _, d := range docs {
		docByID[d.ID] = d
	}

	out := make([]*RankedDocument, 0, len(order))
	for _, docID := range order {
		doc, ok := docByID[docID]
		if !ok || doc.State != domdocs.StateReady {
			continue
		}
		if !matchesFilters(doc, filters) {
			continue
		}
		g := groups[docID]
		out = append(out, &RankedDocument{Document: doc, Score: g.score, Chunks: g.chunks})
	}

	lexRankOf := func(rd *RankedDocument) int { return groups[rd.Document.ID].lexRank }
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		li, lj := lexRankOf(out[i]), lexRankOf(out[j])
		if li != lj {
			return li < lj
		}
		return out[i].Document.ID.String() < out[j].Document.ID.String()
	})
	return out, nil
}

func matchesFilters(doc *types.Document, f Filters) bool {
	if len(f.DocumentTypes) > 0 && !containsString(f.DocumentTypes, doc.DocumentType) {
		return false
	}
	if len(f.ConnectorTypes) > 0 && !containsString(f.ConnectorTypes, doc.DocumentType) {
		return false
	}
	if f.UpdatedAfter != nil && doc.UpdatedAt.Before(*f.UpdatedAfter) {
		return false
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
