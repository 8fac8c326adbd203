package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"calbot/internal/eventbus"
	"calbot/internal/storage"
	kit "calbot/internal/transport"
	logx "calbot/pkg/logx"
	"calbot/pkg/tgui"
)

// Callback verbs carried in inline button data.
const (
	cbNotify    = "notify"     // open the snooze menu
	cbNotifySet = "notify_set" // pick a minute offset
	cbConfirm   = "confirm"    // acknowledge the event
)

// HandleCallback routes one inbound callback tap. Every path answers the
// callback so the client spinner stops; unknown verbs and unknown
// fingerprints are acknowledged and dropped.
func (s *Service) HandleCallback(ctx context.Context, cb *kit.Callback) error {
	verb, payload := tgui.Split(cb.Data)
	switch {
	case verb == cbNotify && len(payload) >= 1:
		return s.handleNotify(ctx, cb, payload[0])
	case verb == cbNotifySet && len(payload) >= 2:
		return s.handleNotifySet(ctx, cb, payload[0], payload[1])
	case verb == cbConfirm && len(payload) >= 1:
		return s.handleConfirm(ctx, cb, payload[0])
	}
	s.log.Debug("unhandled callback", logx.String("data", cb.Data))
	return s.dl.Ack(ctx, cb.ID, "")
}

// handleNotify replaces the message controls with a snooze menu offering
// only points that still fit before the start, plus the zero point. The
// menu reverts to the default controls after the button TTL.
func (s *Service) handleNotify(ctx context.Context, cb *kit.Callback, fp string) error {
	unlock := s.locks.Lock(fp)
	defer unlock()

	rec, err := s.store.Get(ctx, fp)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("callback for unknown record", logx.String("fp", fp))
		return s.dl.Ack(ctx, cb.ID, "Event is no longer tracked")
	}
	if err != nil {
		return err
	}
	if rec.State == storage.StateConfirmed {
		return s.dl.Ack(ctx, cb.ID, "Already confirmed")
	}

	now := s.now()
	if !rec.Start.After(now) {
		return s.dl.Ack(ctx, cb.ID, "Event is already starting")
	}
	minutesLeft := int(rec.Start.Sub(now) / time.Minute)

	var offer []int
	for _, m := range Points(int(s.cfg.LeadWindow / time.Minute)) {
		if m == 0 || m <= minutesLeft {
			offer = append(offer, m)
		}
	}

	if err := s.dl.Ack(ctx, cb.ID, ""); err != nil {
		s.log.Debug("callback ack failed", logx.Err(err))
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := s.dl.EditControls(ctx, ref, SnoozeMenu(fp, offer)); err != nil {
		if errors.Is(err, kit.ErrEditTargetMissing) {
			return nil
		}
		return err
	}
	s.armControlRestore(fp, ref)
	return nil
}

func (s *Service) armControlRestore(fp string, ref kit.MessageRef) {
	name := controlTimerName(fp, ref.MessageID)
	_, err := s.timers.AddOnce(name, s.now().Add(s.cfg.ButtonTTL), 30*time.Second, func(ctx context.Context) error {
		return s.restoreControls(ctx, fp, ref)
	})
	if err != nil {
		s.log.Warn("control restore arm failed", logx.String("fp", fp), logx.Err(err))
	}
}

// restoreControls reverts an abandoned snooze menu. It only acts while the
// record is still announced: any user action or state advance since the
// timer was armed wins.
func (s *Service) restoreControls(ctx context.Context, fp string, ref kit.MessageRef) error {
	unlock := s.locks.Lock(fp)
	defer unlock()

	rec, err := s.store.Get(ctx, fp)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.State != storage.StateAnnounced {
		return nil
	}
	err = s.dl.EditControls(ctx, ref, DefaultControls(fp))
	if errors.Is(err, kit.ErrEditTargetMissing) {
		return nil
	}
	return err
}

// handleNotifySet stores the chosen delay: the next follow-up fires at
// start minus the offset, found by a later poll tick.
func (s *Service) handleNotifySet(ctx context.Context, cb *kit.Callback, fp, minutesRaw string) error {
	minutes, err := strconv.Atoi(minutesRaw)
	if err != nil || minutes < 0 {
		s.log.Debug("bad snooze offset", logx.String("data", cb.Data))
		return s.dl.Ack(ctx, cb.ID, "")
	}

	unlock := s.locks.Lock(fp)
	defer unlock()

	rec, err := s.store.Get(ctx, fp)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("callback for unknown record", logx.String("fp", fp))
		return s.dl.Ack(ctx, cb.ID, "Event is no longer tracked")
	}
	if err != nil {
		return err
	}
	if rec.State == storage.StateConfirmed {
		return s.dl.Ack(ctx, cb.ID, "Already confirmed")
	}

	next := rec.Start.Add(-time.Duration(minutes) * time.Minute)
	rec.NextNotifyAt = &next
	rec.State = storage.StateWaiting
	if err := s.store.Put(ctx, rec); err != nil {
		return err
	}

	s.timers.Remove(controlTimerName(fp, cb.MessageID))
	if err := s.dl.Ack(ctx, cb.ID, "Reminder set"); err != nil {
		s.log.Debug("callback ack failed", logx.Err(err))
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := s.dl.EditControls(ctx, ref, nil); err != nil && !errors.Is(err, kit.ErrEditTargetMissing) {
		return err
	}
	s.publish(eventbus.EventReminderSnoozed, Activity{Fingerprint: fp})
	return nil
}

// handleConfirm sets the terminal confirmed state and rewrites the message
// to its confirmed presentation. Safe to invoke twice: the second tap finds
// the record confirmed and only acknowledges.
func (s *Service) handleConfirm(ctx context.Context, cb *kit.Callback, fp string) error {
	unlock := s.locks.Lock(fp)
	defer unlock()

	rec, err := s.store.Get(ctx, fp)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("callback for unknown record", logx.String("fp", fp))
		return s.dl.Ack(ctx, cb.ID, "Event is no longer tracked")
	}
	if err != nil {
		return err
	}
	if rec.State == storage.StateConfirmed {
		return s.dl.Ack(ctx, cb.ID, "Already confirmed")
	}

	rec.State = storage.StateConfirmed
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := s.dl.EditText(ctx, ref, BuildMessage(StatusConfirmed, rec.Template), nil); err != nil {
		if !errors.Is(err, kit.ErrEditTargetMissing) {
			// Transient: keep the stored state untouched so another tap
			// can retry.
			return err
		}
		s.log.Debug("confirm target missing", logx.String("fp", fp))
	}
	if err := s.dl.EditControls(ctx, ref, nil); err != nil && !errors.Is(err, kit.ErrEditTargetMissing) {
		return err
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return err
	}

	s.timers.Remove(controlTimerName(fp, cb.MessageID))
	s.publish(eventbus.EventReminderConfirmed, Activity{Fingerprint: fp})
	return s.dl.Ack(ctx, cb.ID, "Confirmed")
}

func controlTimerName(fp string, messageID int) string {
	return fmt.Sprintf("controls:%s:%d", fp, messageID)
}
