package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const linearAPI = "https://api.linear.app/graphql"

// linearAdapter indexes issues via the Linear GraphQL API. Linear personal
// API keys go in the Authorization header without a Bearer prefix.
type linearAdapter struct {
	rest *restClient
}

func NewLinearAdapter(log *logger.Logger) Adapter {
	return &linearAdapter{rest: newRESTClient(docdomain.TypeLinear, log)}
}

func (a *linearAdapter) Type() string { return docdomain.TypeLinear }

func (a *linearAdapter) headers(creds *Credentials) map[string]string {
	return map[string]string{"Authorization": bearerToken(creds)}
}

type linearRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (a *linearAdapter) Validate(ctx context.Context, creds *Credentials) error {
	var out struct {
		Data struct {
			Viewer struct {
				ID string `json:"id"`
			} `json:"viewer"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	req := linearRequest{Query: `query { viewer { id } }`}
	if err := a.rest.postJSON(ctx, linearAPI, a.headers(creds), req, &out); err != nil {
		return err
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("linear auth rejected: %s", out.Errors[0].Message)
	}
	if out.Data.Viewer.ID == "" {
		return fmt.Errorf("linear key resolved to no viewer")
	}
	return nil
}

const linearIssuesQuery = `
query Issues($after: String, $since: DateTimeOrDuration!) {
  issues(
    first: 50
    after: $after
    filter: { updatedAt: { gt: $since } }
    orderBy: updatedAt
  ) {
    nodes {
      id
      identifier
      title
      description
      updatedAt
      url
      state { name }
      team { key }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (a *linearAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	cursor := ""
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		vars := map[string]any{"since": since.UTC().Format(time.RFC3339)}
		if cursor != "" {
			vars["after"] = cursor
		}
		var out struct {
			Data struct {
				Issues struct {
					Nodes []struct {
						ID          string `json:"id"`
						Identifier  string `json:"identifier"`
						Title       string `json:"title"`
						Description string `json:"description"`
						UpdatedAt   string `json:"updatedAt"`
						URL         string `json:"url"`
						State       struct {
							Name string `json:"name"`
						} `json:"state"`
						Team struct {
							Key string `json:"key"`
						} `json:"team"`
					} `json:"nodes"`
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
				} `json:"issues"`
			} `json:"data"`
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		req := linearRequest{Query: linearIssuesQuery, Variables: vars}
		if err := a.rest.postJSON(ctx, linearAPI, a.headers(creds), req, &out); err != nil {
			return nil, false, err
		}
		if len(out.Errors) > 0 {
			return nil, false, fmt.Errorf("linear issues query: %s", out.Errors[0].Message)
		}

		var items []*RawItem
		for _, n := range out.Data.Issues.Nodes {
			updated, perr := time.Parse(time.RFC3339, n.UpdatedAt)
			if perr != nil || updated.After(until) {
				continue
			}
			var b strings.Builder
			fmt.Fprintf(&b, "# %s: %s\n\n", n.Identifier, n.Title)
			fmt.Fprintf(&b, "State: %s\n\n", n.State.Name)
			if strings.TrimSpace(n.Description) != "" {
				b.WriteString(n.Description)
			}
			items = append(items, &RawItem{
				RemoteID:   n.ID,
				Title:      fmt.Sprintf("%s: %s", n.Identifier, n.Title),
				Body:       b.String(),
				SourceTime: updated,
				Metadata: map[string]any{
					"identifier": n.Identifier,
					"team":       n.Team.Key,
					"state":      n.State.Name,
					"url":        n.URL,
				},
			})
		}
		pi := out.Data.Issues.PageInfo
		cursor = pi.EndCursor
		return items, pi.HasNextPage, nil
	}), nil
}

func (a *linearAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
