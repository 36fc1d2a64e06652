package connectors

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const slackAPI = "https://slack.com/api"

// slackAdapter indexes channel history. Messages are grouped into one
// document per channel per day so re-ingest of a day collapses to one row.
type slackAdapter struct {
	rest *restClient
}

func NewSlackAdapter(log *logger.Logger) Adapter {
	return &slackAdapter{rest: newRESTClient(docdomain.TypeSlack, log)}
}

func (a *slackAdapter) Type() string { return docdomain.TypeSlack }

func (a *slackAdapter) headers(creds *Credentials) map[string]string {
	return map[string]string{"Authorization": "Bearer " + bearerToken(creds)}
}

type slackEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (a *slackAdapter) Validate(ctx context.Context, creds *Credentials) error {
	var out slackEnvelope
	if err := a.rest.getJSON(ctx, slackAPI+"/auth.test", a.headers(creds), &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("slack auth rejected: %s", out.Error)
	}
	return nil
}

type slackChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type slackMessage struct {
	TS   string `json:"ts"`
	User string `json:"user"`
	Text string `json:"text"`
	Type string `json:"type"`
}

func (a *slackAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	channels, err := a.listChannels(ctx, creds)
	if err != nil {
		return nil, err
	}
	if filter := creds.extra("channels"); filter != "" {
		allowed := map[string]bool{}
		for _, name := range strings.Split(filter, ",") {
			allowed[strings.TrimSpace(name)] = true
		}
		var kept []slackChannel
		for _, ch := range channels {
			if allowed[ch.Name] || allowed[ch.ID] {
				kept = append(kept, ch)
			}
		}
		channels = kept
	}

	idx := 0
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		for idx < len(channels) {
			ch := channels[idx]
			idx++
			items, err := a.channelItems(ctx, creds, ch, since, until)
			if err != nil {
				return nil, false, err
			}
			if len(items) > 0 {
				return items, idx < len(channels), nil
			}
		}
		return nil, false, nil
	}), nil
}

func (a *slackAdapter) listChannels(ctx context.Context, creds *Credentials) ([]slackChannel, error) {
	var all []slackChannel
	cursor := ""
	for {
		q := url.Values{}
		q.Set("types", "public_channel")
		q.Set("exclude_archived", "true")
		q.Set("limit", "200")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var out struct {
			slackEnvelope
			Channels []slackChannel `json:"channels"`
			Meta     struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := a.rest.getJSON(ctx, slackAPI+"/conversations.list?"+q.Encode(), a.headers(creds), &out); err != nil {
			return nil, err
		}
		if !out.OK {
			return nil, fmt.Errorf("slack conversations.list: %s", out.Error)
		}
		all = append(all, out.Channels...)
		if out.Meta.NextCursor == "" {
			return all, nil
		}
		cursor = out.Meta.NextCursor
	}
}

func (a *slackAdapter) channelItems(ctx context.Context, creds *Credentials, ch slackChannel, since, until time.Time) ([]*RawItem, error) {
	byDay := map[string][]slackMessage{}
	cursor := ""
	for {
		q := url.Values{}
		q.Set("channel", ch.ID)
		q.Set("oldest", fmt.Sprintf("%d.000000", since.Unix()))
		q.Set("latest", fmt.Sprintf("%d.000000", until.Unix()))
		q.Set("limit", "200")
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var out struct {
			slackEnvelope
			Messages []slackMessage `json:"messages"`
			HasMore  bool           `json:"has_more"`
			Meta     struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := a.rest.getJSON(ctx, slackAPI+"/conversations.history?"+q.Encode(), a.headers(creds), &out); err != nil {
			return nil, err
		}
		if !out.OK {
			return nil, fmt.Errorf("slack conversations.history %s: %s", ch.ID, out.Error)
		}
		for _, m := range out.Messages {
			if m.Type != "message" || strings.TrimSpace(m.Text) == "" {
				continue
			}
			day := slackTSTime(m.TS).UTC().Format("2006-01-02")
			byDay[day] = append(byDay[day], m)
		}
		if !out.HasMore || out.Meta.NextCursor == "" {
			break
		}
		cursor = out.Meta.NextCursor
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	var items []*RawItem
	for _, day := range days {
		msgs := byDay[day]
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].TS < msgs[j].TS })
		var b strings.Builder
		latest := time.Time{}
		for _, m := range msgs {
			ts := slackTSTime(m.TS)
			if ts.After(latest) {
				latest = ts
			}
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", m.User, ts.UTC().Format("15:04"), m.Text)
		}
		items = append(items, &RawItem{
			RemoteID:   ch.ID + "/" + day,
			Title:      fmt.Sprintf("#%s - %s", ch.Name, day),
			Body:       b.String(),
			SourceTime: latest,
			Metadata: map[string]any{
				"channel_id":   ch.ID,
				"channel_name": ch.Name,
				"day":          day,
			},
		})
	}
	return items, nil
}

func slackTSTime(ts string) time.Time {
	sec := ts
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		sec = ts[:i]
	}
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}

func (a *slackAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
