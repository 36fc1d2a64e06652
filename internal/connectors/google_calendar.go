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

const calendarAPI = "https://www.googleapis.com/calendar/v3"

// googleCalendarAdapter indexes events from the primary calendar, one
// document per event.
type googleCalendarAdapter struct {
	rest *restClient
}

func NewGoogleCalendarAdapter(log *logger.Logger) Adapter {
	return &googleCalendarAdapter{rest: newRESTClient(docdomain.TypeGoogleCalendar, log)}
}

func (a *googleCalendarAdapter) Type() string { return docdomain.TypeGoogleCalendar }

func (a *googleCalendarAdapter) Validate(ctx context.Context, creds *Credentials) error {
	var cal struct {
		ID string `json:"id"`
	}
	if err := a.rest.getJSON(ctx, calendarAPI+"/calendars/primary", googleHeaders(creds), &cal); err != nil {
		return err
	}
	if cal.ID == "" {
		return fmt.Errorf("calendar token resolved to no calendar")
	}
	return nil
}

type calendarEvent struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	HTMLLink    string `json:"htmlLink"`
	Updated     string `json:"updated"`
	Start       struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
}

func (a *googleCalendarAdapter) Discover(ctx context.Context, creds *Credentials, since, until time.Time) (Iterator, error) {
	pageToken := ""
	exhausted := false
	return newPageIterator(func(ctx context.Context) ([]*RawItem, bool, error) {
		if exhausted {
			return nil, false, nil
		}
		q := url.Values{}
		q.Set("updatedMin", since.UTC().Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("showDeleted", "false")
		q.Set("maxResults", "100")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var out struct {
			Items         []calendarEvent `json:"items"`
			NextPageToken string          `json:"nextPageToken"`
		}
		if err := a.rest.getJSON(ctx, calendarAPI+"/calendars/primary/events?"+q.Encode(), googleHeaders(creds), &out); err != nil {
			return nil, false, err
		}

		var items []*RawItem
		for i := range out.Items {
			ev := &out.Items[i]
			if ev.Status == "cancelled" {
				continue
			}
			updated, perr := time.Parse(time.RFC3339, ev.Updated)
			if perr != nil || updated.After(until) {
				continue
			}
			items = append(items, a.eventItem(ev, updated))
		}
		if out.NextPageToken == "" {
			exhausted = true
			return items, false, nil
		}
		pageToken = out.NextPageToken
		return items, true, nil
	}), nil
}

func (a *googleCalendarAdapter) eventItem(ev *calendarEvent, updated time.Time) *RawItem {
	start := ev.Start.DateTime
	if start == "" {
		start = ev.Start.Date
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ev.Summary)
	fmt.Fprintf(&b, "When: %s\n\n", start)
	if ev.Location != "" {
		fmt.Fprintf(&b, "Where: %s\n\n", ev.Location)
	}
	if len(ev.Attendees) > 0 {
		var emails []string
		for _, at := range ev.Attendees {
			emails = append(emails, at.Email)
		}
		fmt.Fprintf(&b, "Attendees: %s\n\n", strings.Join(emails, ", "))
	}
	if strings.TrimSpace(ev.Description) != "" {
		b.WriteString(ev.Description)
	}
	return &RawItem{
		RemoteID:   ev.ID,
		Title:      ev.Summary,
		Body:       b.String(),
		SourceTime: updated,
		Metadata: map[string]any{
			"start": start,
			"url":   ev.HTMLLink,
		},
	}
}

func (a *googleCalendarAdapter) Normalize(item *RawItem) (*NormalizedDoc, error) {
	return normalize(a.Type(), item)
}
