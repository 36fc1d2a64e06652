package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunker splits markdown into ordered, overlapping chunks that fit an
// approximate embedder token budget. Paragraph boundaries are preferred;
// paragraphs that exceed the budget are split on sentence boundaries. The
// split is pure: the same input always yields the same chunks.
type Chunker struct {
	// MaxTokens is the per-chunk budget in approximate tokens.
	MaxTokens int
	// OverlapTokens is carried from the tail of each chunk into the next.
	OverlapTokens int
}

const (
	defaultChunkTokens   = 480
	defaultOverlapTokens = 60
)

func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = defaultChunkTokens
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = defaultOverlapTokens
	}
	return &Chunker{MaxTokens: maxTokens, OverlapTokens: overlapTokens}
}

// ApproxTokens estimates the token count of s. Four characters per token is
// the usual English heuristic for BPE tokenizers; close enough for sizing.
func ApproxTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// Chunk splits markdown into ordered pieces. Empty or whitespace-only input
// yields no chunks.
func (c *Chunker) Chunk(markdown string) []string {
	text := NormalizeContent(markdown)
	if text == "" {
		return nil
	}

	var units []string
	for _, para := range splitParagraphs(text) {
		if ApproxTokens(para) <= c.MaxTokens {
			units = append(units, para)
			continue
		}
		units = append(units, splitSentences(para)...)
	}

	var chunks []string
	var cur strings.Builder
	curTokens := 0
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, cur.String())
		cur.Reset()
		curTokens = 0
	}

	for _, unit := range units {
		ut := ApproxTokens(unit)
		if curTokens > 0 && curTokens+ut > c.MaxTokens {
			prev := cur.String()
			flush()
			if c.OverlapTokens > 0 {
				tail := tailTokens(prev, c.OverlapTokens)
				if tail != "" {
					cur.WriteString(tail)
					curTokens = ApproxTokens(tail)
				}
			}
		}
		// A single unit over budget becomes its own chunk rather than
		// being cut mid-sentence.
		if ut > c.MaxTokens && curTokens == 0 {
			cur.WriteString(unit)
			flush()
			continue
		}
		if curTokens > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(unit)
		curTokens += ut
	}
	flush()
	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences breaks on sentence-final punctuation followed by space and
// an upper-case or digit start. Deliberately simple; markdown prose does not
// warrant a full segmenter.
func splitSentences(para string) []string {
	var out []string
	runes := []rune(para)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if !unicode.IsSpace(runes[i+1]) {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j >= len(runes) {
			break
		}
		if unicode.IsUpper(runes[j]) || unicode.IsDigit(runes[j]) {
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				out = append(out, s)
			}
			start = j
			i = j - 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// tailTokens returns the trailing words of s amounting to roughly n tokens.
func tailTokens(s string, n int) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	budget := n * 4
	size := 0
	i := len(words)
	for i > 0 {
		w := utf8.RuneCountInString(words[i-1]) + 1
		if size+w > budget {
			break
		}
		size += w
		i--
	}
	if i == len(words) {
		i = len(words) - 1
	}
	return strings.Join(words[i:], " ")
}
