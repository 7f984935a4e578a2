// Package calendar mirrors local events into a Google Calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gitea.jw6.us/james/gigboard/internal/apperr"
	"gitea.jw6.us/james/gigboard/internal/config"
	"gitea.jw6.us/james/gigboard/internal/metrics"
	"gitea.jw6.us/james/gigboard/internal/store"
)

const defaultTimeout = 10 * time.Second

// OAuthConfig builds the OAuth client configuration. Explicit client
// credentials win over a downloaded credentials file.
func OAuthConfig(cal config.Calendar) (*oauth2.Config, error) {
	if cal.ClientID != "" && cal.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     cal.ClientID,
			ClientSecret: cal.ClientSecret,
			RedirectURL:  cal.RedirectURL,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		}, nil
	}
	if cal.CredentialsFile == "" {
		return nil, errors.New("no Google client credentials configured")
	}

	b, err := os.ReadFile(cal.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	if cal.RedirectURL != "" {
		cfg.RedirectURL = cal.RedirectURL
	}
	return cfg, nil
}

// GoogleOptions tunes the Google client.
type GoogleOptions struct {
	CalendarID string
	Location   *time.Location
	Timeout    time.Duration
	// Endpoint overrides the API base URL, used by tests.
	Endpoint string
}

// Google issues event calls against the Calendar v3 API.
type Google struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
	timeout    time.Duration
}

// NewGoogle builds a client on top of an authorized HTTP client, typically
// oauth2.NewClient(ctx, tokenCache).
func NewGoogle(ctx context.Context, httpClient *http.Client, opts GoogleOptions) (*Google, error) {
	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	g := &Google{svc: svc, calendarID: opts.CalendarID, loc: opts.Location, timeout: opts.Timeout}
	if g.calendarID == "" {
		g.calendarID = "primary"
	}
	if g.loc == nil {
		g.loc = time.UTC
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	return g, nil
}

// CreateEvent inserts ev and returns the identifier the service assigned.
func (g *Google) CreateEvent(ctx context.Context, ev store.Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	created, err := g.svc.Events.Insert(g.calendarID, g.payload(ev)).Context(ctx).Do()
	if err != nil {
		err = classify(ctx, "create", err)
		metrics.ObserveCalendarCall("create", outcome(err), start)
		return "", err
	}
	if created.Id == "" {
		metrics.ObserveCalendarCall("create", "error", start)
		return "", apperr.RemoteService(errors.New("empty event id"), "calendar insert returned no event id")
	}
	metrics.ObserveCalendarCall("create", "ok", start)
	return created.Id, nil
}

// UpdateEvent re-sends the full payload for remoteID.
func (g *Google) UpdateEvent(ctx context.Context, remoteID string, ev store.Event) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	_, err := g.svc.Events.Update(g.calendarID, remoteID, g.payload(ev)).Context(ctx).Do()
	if err != nil {
		err = classify(ctx, "update", err)
	}
	metrics.ObserveCalendarCall("update", outcome(err), start)
	return err
}

// DeleteEvent removes remoteID. An event the service no longer knows counts as deleted.
func (g *Google) DeleteEvent(ctx context.Context, remoteID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := g.svc.Events.Delete(g.calendarID, remoteID).Context(ctx).Do()
	if err != nil {
		err = classify(ctx, "delete", err)
		if apperr.Is(err, apperr.KindNotFound) {
			metrics.ObserveCalendarCall("delete", "gone", start)
			return nil
		}
	}
	metrics.ObserveCalendarCall("delete", outcome(err), start)
	return err
}

func (g *Google) payload(ev store.Event) *gcal.Event {
	tz := g.loc.String()
	out := &gcal.Event{
		Summary:     ev.Name,
		Location:    ev.Location,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.StartsAt.In(g.loc).Format(time.RFC3339), TimeZone: tz},
		End:         &gcal.EventDateTime{DateTime: ev.EndsAt.In(g.loc).Format(time.RFC3339), TimeZone: tz},
	}
	for _, email := range ev.AttendeeList() {
		out.Attendees = append(out.Attendees, &gcal.EventAttendee{Email: email})
	}
	return out
}

// classify maps a client error onto the application taxonomy.
func classify(ctx context.Context, op string, err error) error {
	// Errors from the token cache already carry their kind.
	if k := apperr.KindOf(err); k == apperr.KindAuth || k == apperr.KindRemoteService {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			return &apperr.Error{Kind: apperr.KindNotFound, Message: "event not found on remote calendar", Err: err}
		case http.StatusUnauthorized:
			return apperr.AuthWrap(err, "calendar service rejected the credential")
		}
		return apperr.RemoteService(err, fmt.Sprintf("calendar %s failed with status %d", op, gerr.Code))
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return apperr.AuthWrap(err, "calendar credential refresh failed")
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.RemoteService(err, fmt.Sprintf("calendar %s timed out", op))
	}
	return apperr.RemoteService(err, fmt.Sprintf("calendar %s failed", op))
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case 0:
		if err == nil {
			return "ok"
		}
		return "error"
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindAuth:
		return "auth_error"
	default:
		return "error"
	}
}
