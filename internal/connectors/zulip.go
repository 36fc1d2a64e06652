package connectors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// zulipAdapter indexes stream messages from a Zulip realm. Credentials:
// api_key plus extra.realm_url and extra.email. Messages group into one
// document per stream/topic per day.
type zulipAdapter struct {
	rest *restClient
}

func NewZulipAdapter(log *logger.Logger) Adapter {
	return &zulipAdapter{rest: newRESTClient(docdomain.TypeZulip, log)}
}

func (a *zulipAdapter) Type() string { return docdomain.TypeZulip }

func (a *zulipAdapter) baseURL(creds *Credentials) (string, error) {
	base := strings.TrimRight(creds.extra("realm_url"), "/")
	if base == "" {
		return "", fmt.Errorf("zulip connector needs realm_url")
	}
	return base, nil
}

func (a *zulipAdapter) headers(creds *Credentials) map[string]string {
	basic := base64.StdEncoding.EncodeToString([]byte(creds.extra("email") + ":" + creds.APIKey))
	return map[string]string{"Authorization": "Basic " + basic}
}

func (a *zulipAdapter) Validate(ctx context.Context, creds *Credentials) error {
	base, err := a.baseURL(creds)
	if err != nil {
		return err
	}
	var me struct {
		Result string `json:"result"`
		Email  string `json:"email"`
	}
	if err := a.rest.getJSON(ctx, base+"/api/v1/users/me", a.headers(creds), &me); err != nil {
		return err
	}
	if me.Result != "success" {
		return fmt.Errorf("zulip credentials rejected")
	}
	return nil
}

type zulipMessage struct {
	ID          int64  `json:"id"`
	Sender      string `json:"sender_full_name"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Timestamp   int64  `json:"timestamp"`
	Stream      string `json:"display_recipient"`
	Topic       string `json:"subject"`
}

// display_recipient is a string for stream messages but an array for DMs;
// decode defensively and skip non-streams.
func (m *zulipMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID          int64           `json:"id"`
		Sender      string          `json:"sender_full_name"`
		Content     string          `json:"content"`
		ContentType string          `json:"content_type"`
		Timestamp   int64           `json:"timestamp"`
		Recipient   json.RawMessage `json:"display_recipient"`
		Topic       string          `json:"subject"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	m.ID, m.Sender, m.Content, m.ContentType, m.Timestamp, m.Topic =
		a.ID, a.Sender, a.Content, a.ContentType, a.Timestamp, a.Topic
	var stream string
	if err := json.Unmarshal(a.Recipient, &stream); err == nil {
		m.Stream = stream
	}
	return nil
}

func (a *zulipAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	base, err := a.baseURL(creds)
	if err != nil {
		return nil, err
	}

	byKey := map[string][]zulipMessage{}
	anchor := "oldest"
	for {
		q := url.Values{}
		q.Set("anchor", anchor)
		q.Set("num_before", "0")
		q.Set("num_after", "200")
		q.Set("narrow", `[{"operator":"streams","operand":"public"}]`)
		q.Set("apply_markdown", "false")

		var out struct {
			Result      string         `json:"result"`
			Messages    []zulipMessage `json:"messages"`
			FoundNewest bool           `json:"found_newest"`
		}
		if err := a.rest.getJSON(ctx, base+"/api/v1/messages?"+q.Encode(), a.headers(creds), &out); err != nil {
			return nil, err
		}
		if out.Result != "success" {
			return nil, fmt.Errorf("zulip messages fetch failed")
		}
		var maxID int64
		for _, m := range out.Messages {
			if m.ID > maxID {
				maxID = m.ID
			}
			ts := time.Unix(m.Timestamp, 0)
			if m.Stream == "" || !ts.After(since) || ts.After(until) {
				continue
			}
			key := m.Stream + "/" + m.Topic + "/" + ts.UTC().Format("2006-01-02")
			byKey[key] = append(byKey[key], m)
		}
		if out.FoundNewest || len(out.Messages) == 0 {
			break
		}
		anchor = fmt.Sprint(maxID + 1)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var items []*RawItem
	for _, key := range keys {
		msgs := byKey[key]
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
		var b strings.Builder
		latest := time.Time{}
		for _, m := range msgs {
			ts := time.Unix(m.Timestamp, 0)
			if ts.After(latest) {
				latest = ts
			}
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", m.Sender, ts.UTC().Format("15:04"), m.Content)
		}
		first := msgs[0]
		items = append(items, &RawItem{
			RemoteID:   key,
			Title:      fmt.Sprintf("%s > %s", first.Stream, first.Topic),
			Body:       b.String(),
			SourceTime: latest,
			Metadata: map[string]any{
				"stream": first.Stream,
				"topic":  first.Topic,
			},
		})
	}
	return newSliceIterator(items), nil
}

func (a *zulipAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
