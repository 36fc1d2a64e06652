package ingest

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// HTMLToMarkdown converts raw HTML into markdown. Source text is always
// markdown-normalized before hashing and chunking so HTML and markdown
// renditions of the same content dedupe together.
func HTMLToMarkdown(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// LooksLikeHTML is a cheap sniff used when a connector cannot declare the
// payload type.
func LooksLikeHTML(s string) bool {
	t := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(t, "<!doctype html") ||
		strings.HasPrefix(t, "<html") ||
		strings.Contains(t, "<body") ||
		strings.Contains(t, "</p>") ||
		strings.Contains(t, "</div>")
}
