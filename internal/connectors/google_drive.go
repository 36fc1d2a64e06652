package connectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	docdomain "github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

const driveAPI = "https://www.googleapis.com/drive/v3"

// exportable Drive types and the text format each exports to.
var driveExportMime = map[string]string{
	"application/vnd.google-apps.document":     "text/plain",
	"application/vnd.google-apps.presentation": "text/plain",
	"application/vnd.google-apps.spreadsheet":  "text/csv",
}

// googleDriveAdapter indexes Google Docs, Slides, and Sheets modified in
// the window, exported as text.
type googleDriveAdapter struct {
	rest *restClient
}

func NewGoogleDriveAdapter(log *logger.Logger) Adapter {
	return &googleDriveAdapter{rest: newRESTClient(docdomain.TypeGoogleDrive, log)}
}

func (a *googleDriveAdapter) Type() string { return docdomain.TypeGoogleDrive }

func (a *googleDriveAdapter) Validate(ctx context.Context, creds *Credentials) error {
	var about struct {
		User struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"user"`
	}
	if err := a.rest.getJSON(ctx, driveAPI+"/about?fields=user", googleHeaders(creds), &about); err != nil {
		return err
	}
	if about.User.EmailAddress == "" {
		return fmt.Errorf("drive token resolved to no user")
	}
	return nil
}

type driveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime"`
	WebViewLink  string `json:"webViewLink"`
}

func (a *googleDriveAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	pageToken := ""
	exhausted := false
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		if exhausted {
			return nil, false, nil
		}
		query := fmt.Sprintf("modifiedTime > '%s' and trashed = false",
			since.UTC().Format(time.RFC3339))
		q := url.Values{}
		q.Set("q", query)
		q.Set("fields", "nextPageToken,files(id,name,mimeType,modifiedTime,webViewLink)")
		q.Set("pageSize", "100")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var out struct {
			Files         []driveFile `json:"files"`
			NextPageToken string      `json:"nextPageToken"`
		}
		if err := a.rest.getJSON(ctx, driveAPI+"/files?"+q.Encode(), googleHeaders(creds), &out); err != nil {
			return nil, false, err
		}

		var items []*RawItem
		for i := range out.Files {
			f := &out.Files[i]
			exportMime, ok := driveExportMime[f.MimeType]
			if !ok {
				continue
			}
			modified, perr := time.Parse(time.RFC3339, f.ModifiedTime)
			if perr != nil || modified.After(until) {
				continue
			}
			text, err := a.exportText(ctx, creds, f.ID, exportMime)
			if err != nil {
				return nil, false, err
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			items = append(items, &RawItem{
				RemoteID:   f.ID,
				Title:      f.Name,
				Body:       text,
				SourceTime: modified,
				Metadata: map[string]any{
					"mime_type": f.MimeType,
					"url":       f.WebViewLink,
				},
			})
		}
		if out.NextPageToken == "" {
			exhausted = true
			return items, false, nil
		}
		pageToken = out.NextPageToken
		return items, true, nil
	}), nil
}

// exportText fetches the exported body directly; export responses are not
// JSON so this bypasses the JSON helper.
func (a *googleDriveAdapter) exportText(ctx context.Context, creds *Credentials, fileID, mime string) (string, error) {
	u := fmt.Sprintf("%s/files/%s/export?mimeType=%s", driveAPI, fileID, url.QueryEscape(mime))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken(creds))
	resp, err := a.rest.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &apiError{Source: a.Type(), StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return string(raw), nil
}

func (a *googleDriveAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
