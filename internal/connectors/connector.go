package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/surfsense/surfsense-backend/internal/ingest"
)

// Credentials is the decrypted credential blob stored on a connector row.
// Simple sources carry an API key or bot token; OAuth sources carry the
// token set plus the client config needed to refresh it.
type Credentials struct {
	APIKey string      `json:"api_key,omitempty"`
	OAuth  *OAuthToken `json:"oauth,omitempty"`

	// Extra holds source-specific settings: Slack channel filters, a GitHub
	// repo list, an Airtable base id, a Zulip realm URL, crawl roots.
	Extra map[string]string `json:"extra,omitempty"`
}

type OAuthToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`

	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
}

func ParseCredentials(blob string) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &c, nil
}

func (c *Credentials) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	return string(b), nil
}

func (c *Credentials) extra(key string) string {
	if c == nil || c.Extra == nil {
		return ""
	}
	return strings.TrimSpace(c.Extra[key])
}

// RawItem is one source object as fetched, before normalization.
type RawItem struct {
	// RemoteID is the source's stable identifier for this object.
	RemoteID string
	Title    string
	// Body is markdown unless BodyIsHTML is set.
	Body       string
	BodyIsHTML bool
	// SourceTime feeds the connector watermark.
	SourceTime time.Time
	Metadata   map[string]any
}

// NormalizedDoc is the adapter output consumed by the ingestion
// coordinator. The coordinator owns persistence; adapters never touch the
// document store.
type NormalizedDoc struct {
	Title                string
	SourceMarkdown       string
	UniqueIdentifierHash string
	DocumentType         string
	DocumentMetadata     map[string]any
	SourceTime           time.Time
}

// Iterator streams discovered items lazily. Next returns io.EOF after the
// last item; adapters page through their source inside Next.
type Iterator interface {
	Next(ctx context.Context) (*RawItem, error)
}

// Adapter is one source integration. Implementations own pagination,
// rate-limit back-off, and OAuth refresh quirks.
type Adapter interface {
	// Type returns the connector_type this adapter serves.
	Type() string
	// Validate checks the credentials against a cheap authenticated
	// endpoint and returns a descriptive error when they are unusable.
	Validate(ctx context.Context, creds *Credentials) error
	// Discover streams items whose source time falls in (since, until].
	Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error)
	// Normalize converts a raw item into the shared document shape.
	Normalize(item *RawItem) (*NormalizedDoc, error)
}

// normalize is the shared normalization path: HTML becomes markdown, the
// identity hash is derived from the connector type and remote id.
func normalize(connectorType string, item *RawItem) (*NormalizedDoc, error) {
	if item == nil {
		return nil, fmt.Errorf("nil item")
	}
	if strings.TrimSpace(item.RemoteID) == "" {
		return nil, fmt.Errorf("%s item missing remote id", connectorType)
	}
	body := item.Body
	if item.BodyIsHTML || ingest.LooksLikeHTML(body) {
		md, err := ingest.HTMLToMarkdown(body)
		if err != nil {
			return nil, fmt.Errorf("%s item %s: %w", connectorType, item.RemoteID, err)
		}
		body = md
	}
	body = ingest.NormalizeContent(body)
	if body == "" {
		return nil, fmt.Errorf("%s item %s has no content", connectorType, item.RemoteID)
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = firstLine(body)
	}
	meta := item.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	meta["remote_id"] = item.RemoteID
	return &NormalizedDoc{
		Title:                title,
		SourceMarkdown:       body,
		UniqueIdentifierHash: ingest.UniqueIdentifierHash(connectorType, item.RemoteID),
		DocumentType:         connectorType,
		DocumentMetadata:     meta,
		SourceTime:           item.SourceTime,
	}, nil
}

func firstLine(s string) string {
	line := s
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		line = s[:i]
	}
	line = strings.TrimLeft(strings.TrimSpace(line), "# ")
	const maxTitle = 120
	if len(line) > maxTitle {
		line = line[:maxTitle]
	}
	if line == "" {
		line = "Untitled"
	}
	return line
}

// sliceIterator serves a pre-fetched batch; adapters whose APIs return
// everything in one or two calls use it instead of a paging iterator.
type sliceIterator struct {
	items []*RawItem
	pos   int
}

func newSliceIterator(items []*RawItem) Iterator {
	return &sliceIterator{items: items}
}

func (it *sliceIterator) Next(ctx context.Context) (*RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.items) {
		return nil, io.EOF
	}
	item := it.items[it.pos]
	it.pos++
	return item, nil
}

// pageIterator drains pages lazily: fetch returns the next batch plus
// whether more pages remain.
type pageIterator struct {
	fetch func(ctx context.Context) ([]*RawItem, bool, error)
	buf   []*RawItem
	pos   int
	done  bool
}

func newPageIterator(fetch func(ctx context.Context) ([]*RawItem, bool, error)) Iterator {
	return &pageIterator{fetch: fetch}
}

func (it *pageIterator) Next(ctx context.Context) (*RawItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.pos < len(it.buf) {
			item := it.buf[it.pos]
			it.pos++
			return item, nil
		}
		if it.done {
			return nil, io.EOF
		}
		batch, more, err := it.fetch(ctx)
		if err != nil {
			return nil, err
		}
		it.buf, it.pos = batch, 0
		it.done = !more
		if len(batch) == 0 && it.done {
			return nil, io.EOF
		}
	}
}
