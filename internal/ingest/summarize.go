package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/openai"
)

const summarySystemPrompt = `You summarize documents for a personal knowledge base.
Write a dense, factual summary of the document below in at most 300 words.
Cover the main topics, named entities, dates, and decisions. Do not add
commentary or opinions. Output plain prose, no headings.`

// summaryInputLimit caps the markdown sent to the model, in runes. Long
// documents are represented well enough by their head.
const summaryInputLimit = 48_000

// Summarizer produces the document-level summary that becomes the canonical
// Document.content, plus its embedding for dense document-level retrieval.
type Summarizer struct {
	ai       openai.Client
	embedder *Embedder
	log      *logger.Logger
}

func NewSummarizer(ai openai.Client, embedder *Embedder, log *logger.Logger) *Summarizer {
	return &Summarizer{
		ai:       ai,
		embedder: embedder,
		log:      log.With("component", "Summarizer"),
	}
}

// Summarize returns the summary text and its embedding. Very short inputs
// skip the LLM round-trip; the text is its own summary.
func (s *Summarizer) Summarize(ctx context.Context, title, markdown string) (string, []float32, error) {
	text := strings.TrimSpace(markdown)
	if text == "" {
		return "", nil, fmt.Errorf("empty document content")
	}

	var summary string
	if ApproxTokens(text) <= 200 {
		summary = text
	} else {
		user := buildSummaryInput(title, text)
		out, err := s.ai.GenerateText(ctx, summarySystemPrompt, user)
		if err != nil {
			return "", nil, fmt.Errorf("generate summary: %w", err)
		}
		summary = strings.TrimSpace(out)
		if summary == "" {
			return "", nil, fmt.Errorf("model returned empty summary")
		}
	}

	vec, err := s.embedder.EmbedText(ctx, summary)
	if err != nil {
		return "", nil, fmt.Errorf("embed summary: %w", err)
	}
	return summary, vec, nil
}

func buildSummaryInput(title, text string) string {
	if utf8.RuneCountInString(text) > summaryInputLimit {
		runes := []rune(text)
		text = string(runes[:summaryInputLimit])
	}
	var b strings.Builder
	if strings.TrimSpace(title) != "" {
		b.WriteString("Title: ")
		b.WriteString(strings.TrimSpace(title))
		b.WriteString("\n\n")
	}
	b.WriteString(text)
	return b.String()
}
