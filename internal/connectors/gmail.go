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

const gmailAPI = "https://gmail.googleapis.com/gmail/v1"

// gmailAdapter indexes messages from the authorized account, one document
// per message.
type gmailAdapter struct {
	rest *restClient
}

func NewGmailAdapter(log *logger.Logger) Adapter {
	return &gmailAdapter{rest: newRESTClient(docdomain.TypeGmail, log)}
}

func (a *gmailAdapter) Type() string { return docdomain.TypeGmail }

func googleHeaders(creds *Credentials) map[string]string {
	return map[string]string{"Authorization": "Bearer " + bearerToken(creds)}
}

func (a *gmailAdapter) Validate(ctx context.Context, creds *Credentials) error {
	var profile struct {
		EmailAddress string `json:"emailAddress"`
	}
	if err := a.rest.getJSON(ctx, gmailAPI+"/users/me/profile", googleHeaders(creds), &profile); err != nil {
		return err
	}
	if profile.EmailAddress == "" {
		return fmt.Errorf("gmail token resolved to no mailbox")
	}
	return nil
}

type gmailMessagePart struct {
	MimeType string `json:"mimeType"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailMessagePart `json:"parts"`
}

type gmailMessage struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	InternalDate string `json:"internalDate"`
	Snippet      string `json:"snippet"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
		gmailMessagePart
	} `json:"payload"`
}

func (m *gmailMessage) header(name string) string {
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func (a *gmailAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	pageToken := ""
	exhausted := false
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		if exhausted {
			return nil, false, nil
		}
		q := url.Values{}
		q.Set("q", fmt.Sprintf("after:%d before:%d", since.Unix(), until.Unix()+1))
		q.Set("maxResults", "50")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var list struct {
			Messages []struct {
				ID string `json:"id"`
			} `json:"messages"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := a.rest.getJSON(ctx, gmailAPI+"/users/me/messages?"+q.Encode(), googleHeaders(creds), &list); err != nil {
			return nil, false, err
		}

		var items []*RawItem
		for _, ref := range list.Messages {
			item, err := a.messageItem(ctx, creds, ref.ID)
			if err != nil {
				return nil, false, err
			}
			if item != nil {
				items = append(items, item)
			}
		}
		if list.NextPageToken == "" {
			exhausted = true
			return items, false, nil
		}
		pageToken = list.NextPageToken
		return items, true, nil
	}), nil
}

func (a *gmailAdapter) messageItem(ctx context.Context, creds *Credentials, id string) (*RawItem, error) {
	var msg gmailMessage
	u := fmt.Sprintf("%s/users/me/messages/%s?format=full", gmailAPI, id)
	if err := a.rest.getJSON(ctx, u, googleHeaders(creds), &msg); err != nil {
		return nil, err
	}

	subject := msg.header("Subject")
	body, isHTML := gmailBody(&msg.Payload.gmailMessagePart)
	if strings.TrimSpace(body) == "" {
		body = msg.Snippet
		isHTML = false
	}
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}

	sent := time.Time{}
	if ms := msg.InternalDate; ms != "" {
		var n int64
		if _, err := fmt.Sscan(ms, &n); err == nil {
			sent = time.UnixMilli(n)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", subject)
	fmt.Fprintf(&b, "From: %s\n\nTo: %s\n\n", msg.header("From"), msg.header("To"))
	b.WriteString(body)

	return &RawItem{
		RemoteID:   msg.ID,
		Title:      subject,
		Body:       b.String(),
		BodyIsHTML: isHTML,
		SourceTime: sent,
		Metadata: map[string]any{
			"thread_id": msg.ThreadID,
			"from":      msg.header("From"),
		},
	}, nil
}

// gmailBody walks the MIME tree preferring text/plain, falling back to
// text/html.
func gmailBody(part *gmailMessagePart) (string, bool) {
	if plain := findGmailPart(part, "text/plain"); plain != "" {
		return plain, false
	}
	if html := findGmailPart(part, "text/html"); html != "" {
		return html, true
	}
	return "", false
}

func findGmailPart(part *gmailMessagePart, mime string) string {
	if strings.HasPrefix(part.MimeType, mime) && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data)
		if err == nil {
			return string(decoded)
		}
	}
	for i := range part.Parts {
		if found := findGmailPart(&part.Parts[i], mime); found != "" {
			return found
		}
	}
	return ""
}

func (a *gmailAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
