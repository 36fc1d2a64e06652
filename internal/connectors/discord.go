package connectors

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const discordAPI = "https://discord.com/api/v10"

// discordAdapter indexes guild channel history with a bot token. Messages
// group into one document per channel per day, like the Slack adapter.
type discordAdapter struct {
	rest *restClient
}

func NewDiscordAdapter(log *logger.Logger) Adapter {
	return &discordAdapter{rest: newRESTClient(docdomain.TypeDiscord, log)}
}

func (a *discordAdapter) Type() string { return docdomain.TypeDiscord }

func (a *discordAdapter) headers(creds *Credentials) map[string]string {
	return map[string]string{"Authorization": "Bot " + bearerToken(creds)}
}

func (a *discordAdapter) Validate(ctx context.Context, creds *Credentials) error {
	if creds.extra("guild_id") == "" {
		return fmt.Errorf("discord connector needs guild_id")
	}
	var me struct {
		ID string `json:"id"`
	}
	if err := a.rest.getJSON(ctx, discordAPI+"/users/@me", a.headers(creds), &me); err != nil {
		return err
	}
	if me.ID == "" {
		return fmt.Errorf("discord bot token rejected")
	}
	return nil
}

type discordChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type int    `json:"type"`
}

type discordMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		Username string `json:"username"`
	} `json:"author"`
}

// discordEpoch is the snowflake epoch (2015-01-01T00:00:00Z) in ms.
const discordEpoch = 1420070400000

func snowflakeAfter(t time.Time) string {
	ms := t.UnixMilli() - discordEpoch
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatInt(ms<<22, 10)
}

func (a *discordAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	guildID := creds.extra("guild_id")
	if guildID == "" {
		return nil, fmt.Errorf("discord connector needs guild_id")
	}
	var channels []discordChannel
	if err := a.rest.getJSON(ctx, fmt.Sprintf("%s/guilds/%s/channels", discordAPI, guildID), a.headers(creds), &channels); err != nil {
		return nil, err
	}
	var text []discordChannel
	for _, ch := range channels {
		// Type 0 is a guild text channel.
		if ch.Type == 0 {
			text = append(text, ch)
		}
	}

	idx := 0
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		for idx < len(text) {
			ch := text[idx]
			idx++
			items, err := a.channelItems(ctx, creds, ch, since, until)
			if err != nil {
				return nil, false, err
			}
			if len(items) > 0 {
				return items, idx < len(text), nil
			}
		}
		return nil, false, nil
	}), nil
}

func (a *discordAdapter) channelItems(ctx context.Context, creds *Credentials, ch discordChannel, since, until time.Time) ([]*RawItem, error) {
	byDay := map[string][]discordMessage{}
	after := snowflakeAfter(since)
	for {
		u := fmt.Sprintf("%s/channels/%s/messages?after=%s&limit=100", discordAPI, ch.ID, after)
		var msgs []discordMessage
		if err := a.rest.getJSON(ctx, u, a.headers(creds), &msgs); err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			break
		}
		// Discord returns newest-first; the highest id pages forward.
		maxID := after
		for _, m := range msgs {
			if m.ID > maxID {
				maxID = m.ID
			}
			ts, err := time.Parse(time.RFC3339, m.Timestamp)
			if err != nil || ts.After(until) || strings.TrimSpace(m.Content) == "" {
				continue
			}
			byDay[ts.UTC().Format("2006-01-02")] = append(byDay[ts.UTC().Format("2006-01-02")], m)
		}
		if len(msgs) < 100 {
			break
		}
		after = maxID
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	var items []*RawItem
	for _, day := range days {
		msgs := byDay[day]
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
		var b strings.Builder
		latest := time.Time{}
		for _, m := range msgs {
			ts, _ := time.Parse(time.RFC3339, m.Timestamp)
			if ts.After(latest) {
				latest = ts
			}
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", m.Author.Username, ts.UTC().Format("15:04"), m.Content)
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

func (a *discordAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
