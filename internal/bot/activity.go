package bot

import (
	"context"
	"fmt"
	"sync"

	"calbot/internal/eventbus"
	"calbot/internal/notify"
	"calbot/pkg/tgui"
)

// Feed keeps a bounded ring of recent bus events for /status.
type Feed struct {
	mu  sync.Mutex
	buf []eventbus.Event
	max int
}

func NewFeed(max int) *Feed {
	if max <= 0 {
		max = 16
	}
	return &Feed{max: max}
}

// Run subscribes to the bus and records events until ctx is done.
// Meant to run under a supervisor.
func (f *Feed) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			f.add(ev)
		}
	}
}

func (f *Feed) add(ev eventbus.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, ev)
	if len(f.buf) > f.max {
		f.buf = f.buf[len(f.buf)-f.max:]
	}
}

// Recent returns up to n events, newest first.
func (f *Feed) Recent(n int) []eventbus.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 || n > len(f.buf) {
		n = len(f.buf)
	}
	out := make([]eventbus.Event, 0, n)
	for i := len(f.buf) - 1; i >= len(f.buf)-n; i-- {
		out = append(out, f.buf[i])
	}
	return out
}

// describeEvent renders one bus event as a /status activity line.
// Titles are user-controlled, so they are bounded here.
func describeEvent(ev eventbus.Event) string {
	switch data := ev.Data.(type) {
	case notify.Activity:
		if data.Title != "" {
			return fmt.Sprintf("%s %s", ev.Type, tgui.TruncRunes(data.Title, 48))
		}
		return fmt.Sprintf("%s %s", ev.Type, data.Fingerprint)
	case notify.PollStats:
		return fmt.Sprintf("%s events=%d sent=%d failed=%d", ev.Type, data.Events, data.Sent, data.Failed)
	case notify.SweepStats:
		return fmt.Sprintf("%s deleted=%d", ev.Type, data.Deleted)
	default:
		return ev.Type
	}
}
