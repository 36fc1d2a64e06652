package connectors

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// jiraAdapter indexes issues from a Jira Cloud site. Credentials: api_key is
// the Atlassian API token, extra carries base_url and email.
type jiraAdapter struct {
	rest *restClient
}

func NewJiraAdapter(log *logger.Logger) Adapter {
	return &jiraAdapter{rest: newRESTClient(docdomain.TypeJira, log)}
}

func (a *jiraAdapter) Type() string { return docdomain.TypeJira }

func atlassianHeaders(creds *Credentials) map[string]string {
	basic := base64.StdEncoding.EncodeToString([]byte(creds.extra("email") + ":" + creds.APIKey))
	return map[string]string{"Authorization": "Basic " + basic}
}

func (a *jiraAdapter) baseURL(creds *Credentials) (string, error) {
	base := strings.TrimRight(creds.extra("base_url"), "/")
	if base == "" {
		return "", fmt.Errorf("jira connector needs base_url (https://your-site.atlassian.net)")
	}
	return base, nil
}

func (a *jiraAdapter) Validate(ctx context.Context, creds *Credentials) error {
	base, err := a.baseURL(creds)
	if err != nil {
		return err
	}
	var me struct {
		AccountID string `json:"accountId"`
	}
	if err := a.rest.getJSON(ctx, base+"/rest/api/3/myself", atlassianHeaders(creds), &me); err != nil {
		return err
	}
	if me.AccountID == "" {
		return fmt.Errorf("jira credentials resolved to no account")
	}
	return nil
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Updated string `json:"updated"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
	} `json:"fields"`
	RenderedFields struct {
		Description string `json:"description"`
	} `json:"renderedFields"`
}

// jiraUpdatedLayout is Jira's issue timestamp format.
const jiraUpdatedLayout = "2006-01-02T15:04:05.000-0700"

func (a *jiraAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	base, err := a.baseURL(creds)
	if err != nil {
		return nil, err
	}
	startAt := 0
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		jql := fmt.Sprintf(`updated >= "%s" AND updated <= "%s" ORDER BY updated ASC`,
			since.UTC().Format("2006-01-02 15:04"),
			until.UTC().Format("2006-01-02 15:04"))
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("startAt", fmt.Sprint(startAt))
		q.Set("maxResults", "50")
		q.Set("expand", "renderedFields")
		q.Set("fields", "summary,updated,status,project")

		var out struct {
			Issues []jiraIssue `json:"issues"`
			Total  int         `json:"total"`
		}
		if err := a.rest.getJSON(ctx, base+"/rest/api/3/search?"+q.Encode(), atlassianHeaders(creds), &out); err != nil {
			return nil, false, err
		}

		var items []*RawItem
		for i := range out.Issues {
			is := &out.Issues[i]
			updated, perr := time.Parse(jiraUpdatedLayout, is.Fields.Updated)
			if perr != nil {
				updated = until
			}
			var b strings.Builder
			fmt.Fprintf(&b, "# %s: %s\n\n", is.Key, is.Fields.Summary)
			fmt.Fprintf(&b, "Status: %s\n\n", is.Fields.Status.Name)
			if strings.TrimSpace(is.RenderedFields.Description) != "" {
				b.WriteString(is.RenderedFields.Description)
			}
			items = append(items, &RawItem{
				RemoteID:   is.Key,
				Title:      fmt.Sprintf("%s: %s", is.Key, is.Fields.Summary),
				Body:       b.String(),
				BodyIsHTML: true,
				SourceTime: updated,
				Metadata: map[string]any{
					"project": is.Fields.Project.Key,
					"status":  is.Fields.Status.Name,
					"url":     base + "/browse/" + is.Key,
				},
			})
		}
		startAt += len(out.Issues)
		more := len(out.Issues) == 50 && startAt < out.Total
		return items, more, nil
	}), nil
}

func (a *jiraAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
