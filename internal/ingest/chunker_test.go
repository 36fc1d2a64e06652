package ingest

import (
	"fmt"
	"strings"
	"testing"
)

func TestChunkEmptyInput(t *testing.T) {
	c := NewChunker(100, 10)
	if got := c.Chunk("   \n\n  "); got != nil {
		t.Fatalf("expected no chunks, got %d", len(got))
	}
}

func TestChunkShortInputSingleChunk(t *testing.T) {
	c := NewChunker(100, 10)
	chunks := c.Chunk("One small paragraph.\n\nAnd another.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0], "One small paragraph.") || !strings.Contains(chunks[0], "And another.") {
		t.Fatalf("chunk lost content: %q", chunks[0])
	}
}

func TestChunkRespectsBudget(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Paragraph %d has a handful of words to fill some space in the budget.\n\n", i)
	}
	c := NewChunker(120, 20)
	chunks := c.Chunk(b.String())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		// Overlap tail plus one paragraph can slightly exceed; allow slack.
		if ApproxTokens(ch) > 120+40 {
			t.Fatalf("chunk %d over budget: %d tokens", i, ApproxTokens(ch))
		}
	}
}

func TestChunkOverlapCarriesTail(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "Sentence block %d padding padding padding padding padding.\n\n", i)
	}
	c := NewChunker(80, 20)
	chunks := c.Chunk(b.String())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	tail := chunks[0][strings.LastIndex(chunks[0], " ")+1:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Fatalf("second chunk does not carry overlap tail %q", tail)
	}
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma delta epsilon zeta. ", 120)
	c := NewChunker(90, 15)
	a := c.Chunk(text)
	b := c.Chunk(text)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First thing happened. Second thing followed! Was there a third? Yes.")
	if len(got) != 4 {
		t.Fatalf("expected 4 sentences, got %d: %v", len(got), got)
	}
	if got[2] != "Was there a third?" {
		t.Fatalf("unexpected sentence: %q", got[2])
	}
}

func TestSplitSentencesKeepsAbbreviationsTogether(t *testing.T) {
	// Lower-case continuation after a period is not a boundary.
	got := splitSentences("The file lives in pkg/util. it moved last week.")
	if len(got) != 1 {
		t.Fatalf("expected 1 sentence, got %d: %v", len(got), got)
	}
}

func TestOversizeUnitBecomesOwnChunk(t *testing.T) {
	huge := strings.Repeat("word ", 400)
	c := NewChunker(50, 10)
	chunks := c.Chunk("Small intro.\n\n" + huge)
	if len(chunks) < 2 {
		t.Fatalf("expected intro and oversize unit separately, got %d", len(chunks))
	}
}
