package connectors

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const githubAPI = "https://api.github.com"

// githubAdapter indexes issues and pull requests of the repos listed in the
// credential blob ("repos": "owner/name,owner/name").
type githubAdapter struct {
	rest *restClient
}

func NewGithubAdapter(log *logger.Logger) Adapter {
	return &githubAdapter{rest: newRESTClient(docdomain.TypeGithub, log)}
}

func (a *githubAdapter) Type() string { return docdomain.TypeGithub }

func (a *githubAdapter) headers(creds *Credentials) map[string]string {
	return map[string]string{
		"Authorization":        "Bearer " + bearerToken(creds),
		"X-GitHub-Api-Version": "2022-11-28",
	}
}

func (a *githubAdapter) repos(creds *Credentials) ([]string, error) {
	raw := creds.extra("repos")
	if raw == "" {
		return nil, fmt.Errorf("github connector needs a repos list (owner/name,...)")
	}
	var out []string
	for _, r := range strings.Split(raw, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.Contains(r, "/") {
			return nil, fmt.Errorf("invalid repo %q, expected owner/name", r)
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("github connector needs at least one repo")
	}
	return out, nil
}

func (a *githubAdapter) Validate(ctx context.Context, creds *Credentials) error {
	if _, err := a.repos(creds); err != nil {
		return err
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := a.rest.getJSON(ctx, githubAPI+"/user", a.headers(creds), &user); err != nil {
		return err
	}
	if user.Login == "" {
		return fmt.Errorf("github token resolved to no user")
	}
	return nil
}

type githubIssue struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	State     string `json:"state"`
	HTMLURL   string `json:"html_url"`
	UpdatedAt string `json:"updated_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	PullRequest *struct{} `json:"pull_request"`
	Labels      []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

func (a *githubAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	repos, err := a.repos(creds)
	if err != nil {
		return nil, err
	}
	repoIdx, page := 0, 1
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		for repoIdx < len(repos) {
			repo := repos[repoIdx]
			q := url.Values{}
			q.Set("state", "all")
			q.Set("sort", "updated")
			q.Set("direction", "asc")
			q.Set("since", since.UTC().Format(time.RFC3339))
			q.Set("per_page", "100")
			q.Set("page", fmt.Sprint(page))

			var issues []githubIssue
			u := fmt.Sprintf("%s/repos/%s/issues?%s", githubAPI, repo, q.Encode())
			if err := a.rest.getJSON(ctx, u, a.headers(creds), &issues); err != nil {
				return nil, false, err
			}

			var items []*RawItem
			for i := range issues {
				item := a.issueItem(repo, &issues[i], until)
				if item != nil {
					items = append(items, item)
				}
			}

			if len(issues) < 100 {
				repoIdx++
				page = 1
			} else {
				page++
			}
			if len(items) > 0 {
				return items, repoIdx < len(repos) || page > 1, nil
			}
		}
		return nil, false, nil
	}), nil
}

func (a *githubAdapter) issueItem(repo string, is *githubIssue, until time.Time) *RawItem {
	updated, err := time.Parse(time.RFC3339, is.UpdatedAt)
	if err != nil || updated.After(until) {
		return nil
	}
	kind := "Issue"
	if is.PullRequest != nil {
		kind = "Pull request"
	}
	var labels []string
	for _, l := range is.Labels {
		labels = append(labels, l.Name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", is.Title)
	fmt.Fprintf(&b, "%s #%d in %s, state %s, by %s.\n", kind, is.Number, repo, is.State, is.User.Login)
	if len(labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s.\n", strings.Join(labels, ", "))
	}
	if strings.TrimSpace(is.Body) != "" {
		b.WriteString("\n")
		b.WriteString(is.Body)
	}
	return &RawItem{
		RemoteID:   fmt.Sprintf("%s#%d", repo, is.Number),
		Title:      fmt.Sprintf("%s: %s", repo, is.Title),
		Body:       b.String(),
		SourceTime: updated,
		Metadata: map[string]any{
			"repo":   repo,
			"number": is.Number,
			"kind":   strings.ToLower(strings.ReplaceAll(kind, " ", "_")),
			"state":  is.State,
			"url":    is.HTMLURL,
		},
	}
}

func (a *githubAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
