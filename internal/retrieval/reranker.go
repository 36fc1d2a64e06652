package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/openai"
)

// excerpt size per document in the rerank prompt.
const rerankExcerptRunes = 1200

const rerankSystemPrompt = `You rank search results by relevance to a query.
Return the ranking as an array of the given document indexes, most relevant
first. Include every index exactly once.`

// LLMReranker reorders grouped results with a structured-output model call.
type LLMReranker struct {
	ai  openai.Client
	log *logger.Logger
}

func NewLLMReranker(ai openai.Client, log *logger.Logger) *LLMReranker {
	return &LLMReranker{ai: ai, log: log.With("component", "LLMReranker")}
}

var rerankSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"ranking": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "integer"},
		},
	},
	"required":             []string{"ranking"},
	"additionalProperties": false,
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, docs []*RankedDocument) ([]*RankedDocument, error) {
	if len(docs) < 2 {
		return docs, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i, d.Document.Title, documentExcerpt(d))
	}

	obj, err := r.ai.GenerateJSON(ctx, rerankSystemPrompt, b.String(), "search_ranking", rerankSchema)
	if err != nil {
		return nil, err
	}

	rawRanking, ok := obj["ranking"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing ranking array")
	}

	out := make([]*RankedDocument, 0, len(docs))
	seen := make(map[int]bool, len(docs))
	for _, v := range rawRanking {
		f, ok := v.(float64)
		if !ok {
			continue
		}
		idx := int(f)
		if idx < 0 || idx >= len(docs) || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, docs[idx])
	}
	// Indexes the model dropped keep their fused order at the tail.
	for i, d := range docs {
		if !seen[i] {
			out = append(out, d)
		}
	}
	return out, nil
}

func documentExcerpt(d *RankedDocument) string {
	var b strings.Builder
	for _, ch := range d.Chunks {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(ch.Content)
		if b.Len() >= rerankExcerptRunes {
			break
		}
	}
	runes := []rune(b.String())
	if len(runes) > rerankExcerptRunes {
		return string(runes[:rerankExcerptRunes])
	}
	return b.String()
}
