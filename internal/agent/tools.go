package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	dommem "github.com/surfsense/surfsense-backend/internal/domain/memory"
	"github.com/surfsense/surfsense-backend/internal/ingest"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
)

// Tool is one agent-invocable action. Invoke returns a JSON-serializable
// result that lands in the tool-result message part and the stream.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, run *Run, args map[string]any) (any, error)
}

const (
	toolFetchTimeout   = 20 * time.Second
	maxPreviewLinks    = 5
	scrapeBodyLimit    = 10 << 20
	previewExcerptSize = 280
)

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func argStrings(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func validHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url %q must be http(s)", raw)
	}
	return u, nil
}

func fetchArticle(ctx context.Context, rawURL string) (*readability.Article, error) {
	u, err := validHTTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "surfsense-agent/1.0")

	client := &http.Client{Timeout: toolFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: http %d", u.String(), resp.StatusCode)
	}

	article, err := readability.FromReader(http.MaxBytesReader(nil, resp.Body, scrapeBodyLimit), u)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", u.String(), err)
	}
	return &article, nil
}

// -------------------- scrape_webpage --------------------

type scrapeWebpageTool struct{}

func (scrapeWebpageTool) Name() string { return "scrape_webpage" }
func (scrapeWebpageTool) Description() string {
	return "Fetch a web page and return its readable content as markdown. Args: url."
}

func (scrapeWebpageTool) Invoke(ctx context.Context, run *Run, args map[string]any) (any, error) {
	rawURL := argString(args, "url")
	if rawURL == "" {
		return nil, fmt.Errorf("url required")
	}
	article, err := fetchArticle(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	markdown, err := ingest.HTMLToMarkdown(article.Content)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"url":      rawURL,
		"title":    article.Title,
		"markdown": ingest.NormalizeContent(markdown),
	}, nil
}

// -------------------- link_preview / multi_link_preview --------------------

func previewOne(ctx context.Context, rawURL string) map[string]any {
	article, err := fetchArticle(ctx, rawURL)
	if err != nil {
		return map[string]any{"url": rawURL, "error": err.Error()}
	}
	excerpt := article.Excerpt
	if excerpt == "" {
		excerpt = article.TextContent
	}
	if runes := []rune(excerpt); len(runes) > previewExcerptSize {
		excerpt = string(runes[:previewExcerptSize])
	}
	return map[string]any{
		"url":       rawURL,
		"title":     article.Title,
		"site_name": article.SiteName,
		"excerpt":   strings.TrimSpace(excerpt),
	}
}

type linkPreviewTool struct{}

func (linkPreviewTool) Name() string { return "link_preview" }
func (linkPreviewTool) Description() string {
	return "Fetch title and summary metadata for a single link. Args: url."
}

func (linkPreviewTool) Invoke(ctx context.Context, run *Run, args map[string]any) (any, error) {
	rawURL := argString(args, "url")
	if rawURL == "" {
		return nil, fmt.Errorf("url required")
	}
	return previewOne(ctx, rawURL), nil
}

type multiLinkPreviewTool struct{}

func (multiLinkPreviewTool) Name() string { return "multi_link_preview" }
func (multiLinkPreviewTool) Description() string {
	return "Fetch preview metadata for up to five links. Args: urls (array)."
}

func (multiLinkPreviewTool) Invoke(ctx context.Context, run *Run, args map[string]any) (any, error) {
	urls := argStrings(args, "urls")
	if len(urls) == 0 {
		return nil, fmt.Errorf("urls required")
	}
	if len(urls) > maxPreviewLinks {
		urls = urls[:maxPreviewLinks]
	}
	previews := make([]map[string]any, 0, len(urls))
	for _, u := range urls {
		previews = append(previews, previewOne(ctx, u))
	}
	return map[string]any{"previews": previews}, nil
}

// -------------------- display_image --------------------

type displayImageTool struct{}

func (displayImageTool) Name() string { return "display_image" }
func (displayImageTool) Description() string {
	return "Render an image inline in the chat. Args: url, alt."
}

func (displayImageTool) Invoke(ctx context.Context, run *Run, args map[string]any) (any, error) {
	rawURL := argString(args, "url")
	if rawURL == "" {
		return nil, fmt.Errorf("url required")
	}
	if _, err := validHTTPURL(rawURL); err != nil {
		return nil, err
	}
	return map[string]any{"url": rawURL, "alt": argString(args, "alt")}, nil
}

// -------------------- write_todos --------------------

type writeTodosTool struct{}

func (writeTodosTool) Name() string { return "write_todos" }
func (writeTodosTool) Description() string {
	return "Show the user a plan as a to-do list. Args: todos (array of strings)."
}

func (writeTodosTool) Invoke(ctx context.Context, run *Run, args map[string]any) (any, error) {
	todos := argStrings(args, "todos")
	if len(todos) == 0 {
		return nil, fmt.Errorf("todos required")
	}
	run.emitter.StateUpdate(ctx, "plan", map[string]any{"todos": todos})
	return map[string]any{"todos": todos}, nil
}

// -------------------- generate_podcast --------------------

// generatePodcastTool creates the podcast row and queues rendering. The
// result is a task handle; the client polls or waits for the notification.
type generatePodcastTool struct{}

func (generatePodcastTool) Name() string { return "generate_podcast" }
func (generatePodcastTool) Description() string {
	return "Generate a narrated podcast from this conversation. Args: title, voice (optional)."
}

func (generatePodcastTool) Invoke(ctx context.Context, run *Run, args map[string]any) (any, error) {
	podcast := &types.Podcast{
		ThreadID:            run.thread.ID,
		Title:               argString(args, "title"),
		Status:              "pending",
		DerivedStateVersion: run.thread.StateVersion,
	}
	rows, err := run.r.podcasts.Create(dbctx.Context{Ctx: ctx}, []*types.Podcast{podcast})
	if err != nil {
		return nil, err
	}
	podcast = rows[0]

	id := podcast.ID
	payload := map[string]any{"podcast_id": id.String()}
	if voice := argString(args, "voice"); voice != "" {
		payload["voice"] = voice
	}
	if _, err := run.r.enqueuer.Enqueue(ctx, run.userID, domjobs.TypePodcastGenerate, "podcast", &id, payload); err != nil {
		return nil, err
	}
	return map[string]any{"podcast_id": id.String(), "status": "pending"}, nil
}

// -------------------- save_memory --------------------

type saveMemoryTool struct{}

func (saveMemoryTool) Name() string { return "save_memory" }
func (saveMemoryTool) Description() string {
	return "Remember a fact, preference, or instruction for future conversations. Args: content, category."
}

func (saveMemoryTool) Invoke(ctx context.Context, run *Run, args map[string]any) (any, error) {
	content := argString(args, "content")
	if content == "" {
		return nil, fmt.Errorf("content required")
	}
	category := argString(args, "category")
	switch category {
	case dommem.CategoryPreference, dommem.CategoryFact, dommem.CategoryInstruction, dommem.CategoryContext:
	case "":
		category = dommem.CategoryFact
	default:
		return nil, fmt.Errorf("invalid category %q", category)
	}

	emb, err := run.r.embedder.EmbedText(ctx, content)
	if err != nil {
		return nil, err
	}
	spaceID := run.thread.SearchSpaceID
	rows, err := run.r.memories.Create(dbctx.Context{Ctx: ctx}, []*types.UserMemory{{
		UserID:        run.userID,
		SearchSpaceID: &spaceID,
		Category:      category,
		Content:       content,
		Embedding:     docrepo.EncodeEmbeddingJSON(emb),
	}})
	if err != nil {
		return nil, err
	}
	return map[string]any{"memory_id": rows[0].ID.String(), "category": category}, nil
}

func defaultTools() map[string]Tool {
	tools := []Tool{
		scrapeWebpageTool{},
		linkPreviewTool{},
		multiLinkPreviewTool{},
		displayImageTool{},
		writeTodosTool{},
		generatePodcastTool{},
		saveMemoryTool{},
	}
	out := make(map[string]Tool, len(tools))
	for _, t := range tools {
		out[t.Name()] = t
	}
	return out
}
