package connectors

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const clickupAPI = "https://api.clickup.com/api/v2"

// clickupAdapter indexes tasks from one workspace (team in the v2 API).
type clickupAdapter struct {
	rest *restClient
}

func NewClickupAdapter(log *logger.Logger) Adapter {
	return &clickupAdapter{rest: newRESTClient(docdomain.TypeClickup, log)}
}

func (a *clickupAdapter) Type() string { return docdomain.TypeClickup }

func (a *clickupAdapter) headers(creds *Credentials) map[string]string {
	return map[string]string{"Authorization": bearerToken(creds)}
}

func (a *clickupAdapter) Validate(ctx context.Context, creds *Credentials) error {
	if creds.extra("team_id") == "" {
		return fmt.Errorf("clickup connector needs team_id")
	}
	var out struct {
		User struct {
			ID int `json:"id"`
		} `json:"user"`
	}
	if err := a.rest.getJSON(ctx, clickupAPI+"/user", a.headers(creds), &out); err != nil {
		return err
	}
	if out.User.ID == 0 {
		return fmt.Errorf("clickup token rejected")
	}
	return nil
}

type clickupTask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TextContent string `json:"text_content"`
	DateUpdated string `json:"date_updated"`
	URL         string `json:"url"`
	Status      struct {
		Status string `json:"status"`
	} `json:"status"`
	List struct {
		Name string `json:"name"`
	} `json:"list"`
	Assignees []struct {
		Username string `json:"username"`
	} `json:"assignees"`
}

func (a *clickupAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	teamID := creds.extra("team_id")
	if teamID == "" {
		return nil, fmt.Errorf("clickup connector needs team_id")
	}
	page := 0
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		q := url.Values{}
		q.Set("date_updated_gt", strconv.FormatInt(since.UnixMilli(), 10))
		q.Set("date_updated_lt", strconv.FormatInt(until.UnixMilli(), 10))
		q.Set("include_closed", "true")
		q.Set("order_by", "updated")
		q.Set("page", strconv.Itoa(page))

		var out struct {
			Tasks    []clickupTask `json:"tasks"`
			LastPage bool          `json:"last_page"`
		}
		u := fmt.Sprintf("%s/team/%s/task?%s", clickupAPI, teamID, q.Encode())
		if err := a.rest.getJSON(ctx, u, a.headers(creds), &out); err != nil {
			return nil, false, err
		}

		var items []*RawItem
		for i := range out.Tasks {
			t := &out.Tasks[i]
			updated := until
			if ms, perr := strconv.ParseInt(t.DateUpdated, 10, 64); perr == nil {
				updated = time.UnixMilli(ms)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "# %s\n\n", t.Name)
			fmt.Fprintf(&b, "Status: %s, list: %s\n\n", t.Status.Status, t.List.Name)
			if len(t.Assignees) > 0 {
				var names []string
				for _, as := range t.Assignees {
					names = append(names, as.Username)
				}
				fmt.Fprintf(&b, "Assignees: %s\n\n", strings.Join(names, ", "))
			}
			if strings.TrimSpace(t.TextContent) != "" {
				b.WriteString(t.TextContent)
			}
			items = append(items, &RawItem{
				RemoteID:   t.ID,
				Title:      t.Name,
				Body:       b.String(),
				SourceTime: updated,
				Metadata: map[string]any{
					"status": t.Status.Status,
					"list":   t.List.Name,
					"url":    t.URL,
				},
			})
		}
		page++
		return items, !out.LastPage, nil
	}), nil
}

func (a *clickupAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
