package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrReauthRequired means the stored OAuth token could not be refreshed.
// The operator has to re-run the authorization flow; until then every
// listing fails the same way, so callers abort the whole poll on it.
var ErrReauthRequired = errors.New("calendar: reauthorization required")

// Source lists events of one account within a time range.
type Source interface {
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error)
}

type googleSource struct {
	svc *gcal.Service
	loc *time.Location
}

func newGoogleSource(ctx context.Context, credentialsFile, tokenFile string, loc *time.Location) (*googleSource, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(b, gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	tok, err := readTokenFile(tokenFile)
	if err != nil {
		return nil, err
	}
	ts := &savingTokenSource{path: tokenFile, src: conf.TokenSource(ctx, tok), last: tok}
	svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return &googleSource{svc: svc, loc: loc}, nil
}

func (s *googleSource) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error) {
	res, err := s.svc.Events.List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		Do()
	if err != nil {
		return nil, classifyAPIError(err)
	}

	out := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		ev, err := s.parseEvent(item)
		if err != nil {
			// Malformed items are skipped rather than failing the calendar.
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *googleSource) parseEvent(item *gcal.Event) (Event, error) {
	start, allDay, err := parseEventTime(item.Start, s.loc)
	if err != nil {
		return Event{}, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, _, err := parseEventTime(item.End, s.loc)
	if err != nil {
		end = start
	}
	title := strings.TrimSpace(item.Summary)
	if title == "" {
		title = "(untitled)"
	}
	return Event{
		Fingerprint: Fingerprint(item.Id, start),
		Title:       title,
		Start:       start,
		End:         end,
		AllDay:      allDay,
	}, nil
}

// parseEventTime handles both timed events (dateTime) and all-day events,
// which carry a date-only value interpreted in the configured location.
func parseEventTime(t *gcal.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	if t == nil {
		return time.Time{}, false, errors.New("missing time")
	}
	if t.DateTime != "" {
		ts, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		return ts.In(loc), false, nil
	}
	if t.Date != "" {
		ts, err := time.ParseInLocation("2006-01-02", t.Date, loc)
		if err != nil {
			return time.Time{}, false, err
		}
		return ts, true, nil
	}
	return time.Time{}, false, errors.New("neither dateTime nor date set")
}

func classifyAPIError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	if strings.Contains(err.Error(), "invalid_grant") {
		return fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	return err
}

// savingTokenSource persists refreshed tokens back to the token file so a
// restart does not lose the rotated access token.
type savingTokenSource struct {
	path string
	src  oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		s.last = tok
		if b, err := json.Marshal(tok); err == nil {
			_ = os.WriteFile(s.path, b, 0o600)
		}
	}
	return tok, nil
}

func readTokenFile(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	return &tok, nil
}
