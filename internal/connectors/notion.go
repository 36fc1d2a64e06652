package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const (
	notionAPI     = "https://api.notion.com/v1"
	notionVersion = "2022-06-28"
)

// notionAdapter indexes pages shared with the integration. One document per
// page; block children are flattened to markdown one level deep per block
// tree walk.
type notionAdapter struct {
	rest *restClient
}

func NewNotionAdapter(log *logger.Logger) Adapter {
	return &notionAdapter{rest: newRESTClient(docdomain.TypeNotion, log)}
}

func (a *notionAdapter) Type() string { return docdomain.TypeNotion }

func (a *notionAdapter) headers(creds *Credentials) map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + bearerToken(creds),
		"Notion-Version": notionVersion,
	}
}

func (a *notionAdapter) Validate(ctx context.Context, creds *Credentials) error {
	var out struct {
		Object string `json:"object"`
	}
	if err := a.rest.getJSON(ctx, notionAPI+"/users/me", a.headers(creds), &out); err != nil {
		return err
	}
	if out.Object == "" {
		return fmt.Errorf("notion token rejected")
	}
	return nil
}

type notionRichText struct {
	PlainText string `json:"plain_text"`
}

type notionPage struct {
	ID             string                    `json:"id"`
	LastEditedTime string                    `json:"last_edited_time"`
	URL            string                    `json:"url"`
	Properties     map[string]notionProperty `json:"properties"`
}

type notionProperty struct {
	Type  string           `json:"type"`
	Title []notionRichText `json:"title"`
}

func (p *notionPage) title() string {
	for _, prop := range p.Properties {
		if prop.Type != "title" {
			continue
		}
		var b strings.Builder
		for _, rt := range prop.Title {
			b.WriteString(rt.PlainText)
		}
		return strings.TrimSpace(b.String())
	}
	return ""
}

func (a *notionAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	cursor := ""
	exhausted := false
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		if exhausted {
			return nil, false, nil
		}
		body := map[string]any{
			"filter":    map[string]any{"property": "object", "value": "page"},
			"sort":      map[string]any{"timestamp": "last_edited_time", "direction": "descending"},
			"page_size": 100,
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}
		var out struct {
			Results    []notionPage `json:"results"`
			HasMore    bool         `json:"has_more"`
			NextCursor string       `json:"next_cursor"`
		}
		if err := a.rest.postJSON(ctx, notionAPI+"/search", a.headers(creds), body, &out); err != nil {
			return nil, false, err
		}

		var items []*RawItem
		for i := range out.Results {
			page := &out.Results[i]
			edited, err := time.Parse(time.RFC3339, page.LastEditedTime)
			if err != nil {
				continue
			}
			// Results are newest-first; past the window means done.
			if !edited.After(since) {
				exhausted = true
				break
			}
			if edited.After(until) {
				continue
			}
			md, err := a.pageMarkdown(ctx, creds, page.ID)
			if err != nil {
				return nil, false, err
			}
			items = append(items, &RawItem{
				RemoteID:   page.ID,
				Title:      page.title(),
				Body:       md,
				SourceTime: edited,
				Metadata:   map[string]any{"url": page.URL},
			})
		}
		if !exhausted && out.HasMore {
			cursor = out.NextCursor
			return items, true, nil
		}
		exhausted = true
		return items, false, nil
	}), nil
}

type notionBlock struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`

	Paragraph        *notionTextBlock `json:"paragraph"`
	Heading1         *notionTextBlock `json:"heading_1"`
	Heading2         *notionTextBlock `json:"heading_2"`
	Heading3         *notionTextBlock `json:"heading_3"`
	BulletedListItem *notionTextBlock `json:"bulleted_list_item"`
	NumberedListItem *notionTextBlock `json:"numbered_list_item"`
	ToDo             *notionTextBlock `json:"to_do"`
	Quote            *notionTextBlock `json:"quote"`
	Code             *notionTextBlock `json:"code"`
}

type notionTextBlock struct {
	RichText []notionRichText `json:"rich_text"`
}

func (b *notionTextBlock) text() string {
	if b == nil {
		return ""
	}
	var sb strings.Builder
	for _, rt := range b.RichText {
		sb.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(sb.String())
}

func (a *notionAdapter) pageMarkdown(ctx context.Context, creds *Credentials, pageID string) (string, error) {
	var b strings.Builder
	cursor := ""
	for {
		u := fmt.Sprintf("%s/blocks/%s/children?page_size=100", notionAPI, pageID)
		if cursor != "" {
			u += "&start_cursor=" + cursor
		}
		var out struct {
			Results    []notionBlock `json:"results"`
			HasMore    bool          `json:"has_more"`
			NextCursor string        `json:"next_cursor"`
		}
		if err := a.rest.getJSON(ctx, u, a.headers(creds), &out); err != nil {
			return "", err
		}
		for i := range out.Results {
			writeNotionBlock(&b, &out.Results[i])
		}
		if !out.HasMore {
			return b.String(), nil
		}
		cursor = out.NextCursor
	}
}

func writeNotionBlock(b *strings.Builder, blk *notionBlock) {
	switch blk.Type {
	case "heading_1":
		fmt.Fprintf(b, "# %s\n\n", blk.Heading1.text())
	case "heading_2":
		fmt.Fprintf(b, "## %s\n\n", blk.Heading2.text())
	case "heading_3":
		fmt.Fprintf(b, "### %s\n\n", blk.Heading3.text())
	case "paragraph":
		if t := blk.Paragraph.text(); t != "" {
			fmt.Fprintf(b, "%s\n\n", t)
		}
	case "bulleted_list_item":
		fmt.Fprintf(b, "- %s\n", blk.BulletedListItem.text())
	case "numbered_list_item":
		fmt.Fprintf(b, "1. %s\n", blk.NumberedListItem.text())
	case "to_do":
		fmt.Fprintf(b, "- [ ] %s\n", blk.ToDo.text())
	case "quote":
		fmt.Fprintf(b, "> %s\n\n", blk.Quote.text())
	case "code":
		fmt.Fprintf(b, "```\n%s\n```\n\n", blk.Code.text())
	}
}

func (a *notionAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
