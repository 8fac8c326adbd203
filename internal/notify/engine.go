package notify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/eventbus"
	"calbot/internal/storage"
	kit "calbot/internal/transport"
	logx "calbot/pkg/logx"
)

// Lister is the slice of the calendar manager the engine needs.
type Lister interface {
	ListAll(ctx context.Context, from, to time.Time) ([]calendar.Event, error)
}

// Deferrer arms named one-shot timers (auto-start, control restore).
// Re-arming a name replaces the previous timer; stale callbacks are ignored.
type Deferrer interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}

// Config carries the reminder knobs.
type Config struct {
	LeadWindow time.Duration // how far ahead events are tracked
	ButtonTTL  time.Duration // snooze menu lifetime before controls revert
	Retention  time.Duration // sweep deletes records whose start is older

	// Now is a clock hook for tests; nil means time.Now.
	Now func() time.Time
}

// Deps are the injected collaborators.
type Deps struct {
	Log      logx.Logger
	Calendar Lister
	Store    storage.Store
	Delivery *Delivery
	Timers   Deferrer
	Bus      eventbus.Bus
}

// Activity is the bus payload for reminder.* events.
type Activity struct {
	Fingerprint string
	Title       string
}

// PollStats is the bus payload for poll.completed.
type PollStats struct {
	Events int
	Sent   int
	Failed int
	Took   time.Duration
}

// SweepStats is the bus payload for sweep.completed.
type SweepStats struct {
	Deleted int
}

// Service is the notification engine together with the interaction handler.
// Both sides mutate the same records under the same per-fingerprint locks,
// so they live on one type: Tick and Sweep run under the scheduler,
// HandleCallback under the bot's update loop.
type Service struct {
	log    logx.Logger
	cal    Lister
	store  storage.Store
	dl     *Delivery
	timers Deferrer
	bus    eventbus.Bus
	cfg    Config
	locks  *keyedMutex
	now    func() time.Time

	// reauthNotified latches the operator alert so an expired token does
	// not produce one chat message per tick until someone fixes it.
	reauthNotified atomic.Bool
}

func New(cfg Config, d Deps) *Service {
	if cfg.LeadWindow <= 0 {
		cfg.LeadWindow = 2 * time.Hour
	}
	if cfg.ButtonTTL <= 0 {
		cfg.ButtonTTL = 30 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		cal:    d.Calendar,
		store:  d.Store,
		dl:     d.Delivery,
		timers: d.Timers,
		bus:    d.Bus,
		cfg:    cfg,
		locks:  newKeyedMutex(),
		now:    now,
	}
}

// Tick reconciles live events within the lead window against tracked
// records. It is registered as a non-overlapping scheduler job; no two
// ticks run concurrently.
func (s *Service) Tick(ctx context.Context) error {
	started := s.now()
	events, err := s.cal.ListAll(ctx, started, started.Add(s.cfg.LeadWindow))
	if err != nil {
		if errors.Is(err, calendar.ErrReauthRequired) {
			s.log.Error("calendar auth expired", logx.Err(err))
			if s.reauthNotified.CompareAndSwap(false, true) {
				if _, serr := s.dl.Send(ctx, "Google token expired or was revoked. Reauthorization required.", nil); serr != nil {
					s.reauthNotified.Store(false)
					s.log.Warn("reauth notice failed", logx.Err(serr))
				}
			}
			return err
		}
		// Partial listing failure: some calendars are missing this tick,
		// the rest still get their reminders.
		s.log.Warn("partial calendar listing", logx.Err(err))
	}
	s.reauthNotified.Store(false)

	stats := PollStats{Events: len(events)}
	for _, ev := range events {
		if ev.Fingerprint == "" {
			continue
		}
		sent, perr := s.processEvent(ctx, ev)
		if sent {
			stats.Sent++
		}
		if perr != nil {
			stats.Failed++
			s.log.Warn("event processing failed",
				logx.String("fp", ev.Fingerprint),
				logx.String("title", ev.Title),
				logx.Err(perr))
		}
	}
	stats.Took = s.now().Sub(started)
	s.publish(eventbus.EventPollCompleted, stats)
	s.log.Debug("poll tick done",
		logx.Int("events", stats.Events),
		logx.Int("sent", stats.Sent),
		logx.Int("failed", stats.Failed),
		logx.Duration("took", stats.Took))
	return nil
}

// processEvent applies the state machine to one event under its lock.
//
// Ordering discipline: the state advances on the local copy first, the send
// goes out, and only a successful send is persisted together with the new
// message id. A failed send leaves the stored record untouched, so the next
// tick retries the same step; at most one send per (fingerprint, step) since
// ticks never overlap.
func (s *Service) processEvent(ctx context.Context, ev calendar.Event) (sent bool, err error) {
	unlock := s.locks.Lock(ev.Fingerprint)
	defer unlock()

	now := s.now()
	rec, err := s.store.Get(ctx, ev.Fingerprint)
	if errors.Is(err, storage.ErrNotFound) {
		rec = storage.Record{
			Fingerprint: ev.Fingerprint,
			Start:       ev.Start,
			State:       storage.StateNew,
			Template:    Template(ev.Source, ev.Title, ev.Start),
		}
	} else if err != nil {
		return false, err
	}

	switch {
	case rec.State == storage.StateConfirmed:
		// Terminal for the polling path; only the sweep touches it now.
		return false, nil

	case !rec.Start.After(now) && rec.State != storage.StateStarted:
		rec.State = storage.StateStarted
		ref, serr := s.dl.Send(ctx, BuildMessage(StatusStarted, rec.Template), nil)
		if serr != nil {
			return false, serr
		}
		rec.ChatID, rec.MessageID = ref.ChatID, ref.MessageID
		if perr := s.store.Put(ctx, rec); perr != nil {
			return true, fmt.Errorf("persist started: %w", perr)
		}
		s.publish(eventbus.EventReminderStarted, Activity{Fingerprint: rec.Fingerprint, Title: ev.Title})
		return true, nil

	case rec.State == storage.StateNew:
		rec.State = storage.StateAnnounced
		ref, serr := s.dl.Send(ctx, BuildMessage(StatusAnnounced, rec.Template), DefaultControls(rec.Fingerprint))
		if serr != nil {
			return false, serr
		}
		rec.ChatID, rec.MessageID = ref.ChatID, ref.MessageID
		if perr := s.store.Put(ctx, rec); perr != nil {
			return true, fmt.Errorf("persist announced: %w", perr)
		}
		// Covers polling-interval gaps: the event flips to started on time
		// even if no tick observes the start.
		s.armAutoStart(rec.Fingerprint, rec.Start)
		s.publish(eventbus.EventReminderAnnounced, Activity{Fingerprint: rec.Fingerprint, Title: ev.Title})
		return true, nil

	case rec.State == storage.StateWaiting && rec.NextNotifyAt != nil && !now.Before(*rec.NextNotifyAt):
		rec.NextNotifyAt = nil
		ref, serr := s.dl.Send(ctx, BuildMessage(StatusSoon, rec.Template), DefaultControls(rec.Fingerprint))
		if serr != nil {
			return false, serr
		}
		rec.ChatID, rec.MessageID = ref.ChatID, ref.MessageID
		if perr := s.store.Put(ctx, rec); perr != nil {
			return true, fmt.Errorf("persist follow-up: %w", perr)
		}
		s.publish(eventbus.EventReminderNotified, Activity{Fingerprint: rec.Fingerprint, Title: ev.Title})
		return true, nil
	}

	return false, nil
}

func (s *Service) armAutoStart(fp string, at time.Time) {
	name := "autostart:" + fp
	_, err := s.timers.AddOnce(name, at, 30*time.Second, func(ctx context.Context) error {
		return s.autoStart(ctx, fp)
	})
	if err != nil {
		s.log.Warn("auto-start arm failed", logx.String("fp", fp), logx.Err(err))
	}
}

// autoStart fires at the event's start instant. It re-checks state first:
// the record may have been confirmed or already started since the timer was
// armed.
func (s *Service) autoStart(ctx context.Context, fp string) error {
	unlock := s.locks.Lock(fp)
	defer unlock()

	rec, err := s.store.Get(ctx, fp)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.State == storage.StateStarted || rec.State == storage.StateConfirmed {
		return nil
	}

	ref := kit.MessageRef{ChatID: rec.ChatID, MessageID: rec.MessageID}
	if !ref.IsZero() {
		if err := s.dl.EditText(ctx, ref, BuildMessage(StatusStarted, rec.Template), nil); err != nil {
			if !errors.Is(err, kit.ErrEditTargetMissing) {
				// Transient: leave state alone, the next poll tick sends a
				// fresh started notification instead.
				return err
			}
			s.log.Debug("auto-start target missing", logx.String("fp", fp))
		}
		if err := s.dl.EditControls(ctx, ref, nil); err != nil && !errors.Is(err, kit.ErrEditTargetMissing) {
			return err
		}
	}

	rec.State = storage.StateStarted
	if err := s.store.Put(ctx, rec); err != nil {
		return err
	}
	s.publish(eventbus.EventReminderStarted, Activity{Fingerprint: fp})
	return nil
}

// Sweep deletes records whose event start fell out of the retention
// horizon. The horizon vastly exceeds the lead window, so the sweep never
// races a live notification decision.
func (s *Service) Sweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.Retention)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("retention sweep", logx.Int("deleted", n), logx.Time("cutoff", cutoff))
	}
	s.publish(eventbus.EventSweepCompleted, SweepStats{Deleted: n})
	return nil
}

// Counts exposes per-state record counts for the status command.
func (s *Service) Counts(ctx context.Context) (map[storage.State]int, error) {
	return s.store.Count(ctx)
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
