package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	logx "calbot/pkg/logx"
)

// Account is one user's token plus the calendars fetched with it.
type Account struct {
	Name      string
	TokenFile string
	Calendars map[string]string // display name -> Google calendar id
}

// Config configures the Manager.
type Config struct {
	CredentialsFile string
	Accounts        []Account
	Location        *time.Location
}

// AccountInfo is the read-only view used by listing commands.
type AccountInfo struct {
	Name      string
	Calendars []string // display names, sorted
}

type calendarRef struct {
	name string
	id   string
}

type managedAccount struct {
	name      string
	calendars []calendarRef
	source    Source
}

// Manager fans listing requests out over every configured account and
// calendar, tagging each event with the calendar it came from.
type Manager struct {
	log      logx.Logger
	loc      *time.Location
	accounts []managedAccount
}

// NewManager builds one Google source per account. A broken token or
// credentials file fails construction; the operator must fix it before the
// bot is useful anyway.
func NewManager(ctx context.Context, cfg Config, log logx.Logger) (*Manager, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	if len(cfg.Accounts) == 0 {
		return nil, errors.New("no calendar accounts configured")
	}

	accounts := make([]Account, len(cfg.Accounts))
	copy(accounts, cfg.Accounts)
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })

	m := &Manager{log: log, loc: loc}
	for _, acc := range accounts {
		src, err := newGoogleSource(ctx, cfg.CredentialsFile, acc.TokenFile, loc)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", acc.Name, err)
		}
		refs := make([]calendarRef, 0, len(acc.Calendars))
		for name, id := range acc.Calendars {
			refs = append(refs, calendarRef{name: name, id: id})
		}
		sort.Slice(refs, func(i, j int) bool { return refs[i].name < refs[j].name })
		m.accounts = append(m.accounts, managedAccount{name: acc.Name, calendars: refs, source: src})
		log.Info("calendar account ready",
			logx.String("account", acc.Name),
			logx.Int("calendars", len(refs)))
	}
	return m, nil
}

// Location returns the configured timezone.
func (m *Manager) Location() *time.Location { return m.loc }

// Accounts returns the configured accounts and their calendar names.
func (m *Manager) Accounts() []AccountInfo {
	out := make([]AccountInfo, 0, len(m.accounts))
	for _, acc := range m.accounts {
		names := make([]string, 0, len(acc.calendars))
		for _, c := range acc.calendars {
			names = append(names, c.name)
		}
		out = append(out, AccountInfo{Name: acc.name, Calendars: names})
	}
	return out
}

// CalendarNames returns every calendar display name in iteration order,
// for stable section ordering when rendering listings.
func (m *Manager) CalendarNames() []string {
	var out []string
	for _, acc := range m.accounts {
		for _, c := range acc.calendars {
			out = append(out, c.name)
		}
	}
	return out
}

// ListAll merges events of every account and calendar within [from, to),
// sorted by start time.
//
// ErrReauthRequired aborts the listing: every calendar of that token fails
// identically and the operator has to intervene. Any other per-calendar
// failure only skips that calendar; partial results are returned together
// with the joined errors so callers can log and keep going.
func (m *Manager) ListAll(ctx context.Context, from, to time.Time) ([]Event, error) {
	var (
		all  []Event
		errs []error
	)
	for _, acc := range m.accounts {
		for _, cal := range acc.calendars {
			evs, err := acc.source.ListEvents(ctx, cal.id, from, to)
			if err != nil {
				if errors.Is(err, ErrReauthRequired) {
					return nil, fmt.Errorf("account %s calendar %s: %w", acc.name, cal.name, err)
				}
				m.log.Warn("calendar listing failed",
					logx.String("account", acc.name),
					logx.String("calendar", cal.name),
					logx.Err(err))
				errs = append(errs, fmt.Errorf("%s/%s: %w", acc.name, cal.name, err))
				continue
			}
			for i := range evs {
				evs[i].Source = cal.name
			}
			all = append(all, evs...)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
	return all, errors.Join(errs...)
}
