package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/notify"
	"calbot/internal/runtime/supervisor"
	"calbot/internal/scheduler"
	"calbot/internal/storage"
	logx "calbot/pkg/logx"
	"calbot/pkg/tgui"
)

// Deps are the collaborators the command handlers read from.
// All access is read-only; state changes happen in the reminder flow.
type Deps struct {
	Calendar  *calendar.Manager
	Reminders *notify.Service
	Scheduler *scheduler.Service
	Feed      *Feed

	// Runtime reports supervised-goroutine health for /status; nil hides it.
	Runtime func() supervisor.SupervisorSnapshot

	// Now is a clock hook for tests; nil means time.Now.
	Now func() time.Time
}

// Commands returns the full command set, wired to d.
func Commands(d Deps) []Command {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{d: d}
	return []Command{
		{Name: "start", Description: "what this bot does", Timeout: 10 * time.Second, Handle: h.start},
		{Name: "today", Description: "events for today", Menu: true, Timeout: 30 * time.Second, Handle: h.day(0, "today")},
		{Name: "tomorrow", Description: "events for tomorrow", Menu: true, Timeout: 30 * time.Second, Handle: h.day(1, "tomorrow")},
		{Name: "week", Description: "events for this week", Menu: true, Timeout: 30 * time.Second, Handle: h.week(0, "this week")},
		{Name: "nextweek", Description: "events for next week", Menu: true, Timeout: 30 * time.Second, Handle: h.week(1, "next week")},
		{Name: "status", Description: "tracker status", Menu: true, Timeout: 15 * time.Second, Handle: h.status},
	}
}

type handlers struct {
	d Deps
}

func (h *handlers) start(ctx context.Context, req *Request) error {
	b := tgui.New().
		Title("👋", "Hi!").
		Blank().
		Line("📅 I watch your Google Calendars and post reminders for upcoming events here.").
		Blank().
		Line("Connected calendars:")
	for _, acc := range h.d.Calendar.Accounts() {
		line := tgui.Raw("👤 ") + tgui.B(acc.Name)
		if len(acc.Calendars) > 0 {
			line += tgui.Esc(": " + strings.Join(acc.Calendars, ", "))
		}
		b.RawLine(line.String())
	}
	b.Blank().
		Line("Commands:").
		RawLine(cmdHelp("/today", "events for", "today")).
		RawLine(cmdHelp("/tomorrow", "events for", "tomorrow")).
		RawLine(cmdHelp("/week", "events for", "this week")).
		RawLine(cmdHelp("/nextweek", "events for", "next week")).
		RawLine(cmdHelp("/status", "tracker", "status")).
		Blank().
		Line("⏰ Reminders come with \"Remind me\" and \"Confirm\" buttons.")

	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func cmdHelp(cmd, verb, what string) string {
	return (tgui.Raw("➡️ ") + tgui.B(cmd) + tgui.Esc(" - "+verb+" ") + tgui.I(what)).String()
}

// day returns a handler listing events for today+offset days.
func (h *handlers) day(offset int, label string) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		from, to := calendar.DayRange(h.d.Now(), h.d.Calendar.Location(), offset)
		return h.listRange(ctx, req, label, from, to)
	}
}

// week returns a handler listing events for the Monday-based week at offset.
func (h *handlers) week(offset int, label string) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		from, to := calendar.WeekRange(h.d.Now(), h.d.Calendar.Location(), offset)
		return h.listRange(ctx, req, label, from, to)
	}
}

func (h *handlers) listRange(ctx context.Context, req *Request, label string, from, to time.Time) error {
	events, err := h.d.Calendar.ListAll(ctx, from, to)
	if err != nil {
		if errors.Is(err, calendar.ErrReauthRequired) {
			_, _ = req.Adapter.SendText(ctx, req.Chat,
				"⚠️ Google authorization expired. Refresh the account token to resume.", nil)
			return err
		}
		// Partial listing: show what we got, note the rest in the log.
		req.Log.Warn("calendar listing incomplete", logx.Err(err))
	}
	if len(events) == 0 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "No events "+label+".", nil)
		return nil
	}

	byCal := map[string][]calendar.Event{}
	for _, ev := range events {
		byCal[ev.Source] = append(byCal[ev.Source], ev)
	}

	b := tgui.New().
		RawLine(("📅 " + tgui.BH(tgui.Esc("Events ")+tgui.U(label))).String())
	for _, name := range h.d.Calendar.CalendarNames() {
		evs := byCal[name]
		if len(evs) == 0 {
			continue
		}
		b.Blank().RawLine(("👤 " + tgui.UH(tgui.B(name))).String())
		for _, ev := range evs {
			b.RawLine(notify.FormatEvent(ev.Title, ev.Start))
		}
	}

	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

const (
	statusTimerLines    = 6
	statusActivityLines = 8
)

func (h *handlers) status(ctx context.Context, req *Request) error {
	loc := h.d.Calendar.Location()
	b := tgui.New().Title("📊", "Tracker status")

	counts, err := h.d.Reminders.Counts(ctx)
	if err != nil {
		req.Log.Warn("tracked-event counts unavailable", logx.Err(err))
		b.Blank().Line("Tracked events: unavailable")
	} else {
		total := 0
		for _, n := range counts {
			total += n
		}
		b.Blank().KV("Tracked events", strconv.Itoa(total))
		for _, st := range storage.States() {
			if n := counts[st]; n > 0 {
				b.Line(fmt.Sprintf("   %s: %d", st, n))
			}
		}
	}

	snap := h.d.Scheduler.Snapshot()
	b.Blank().Section("Schedules (" + snap.Timezone + ")")
	if len(snap.Schedules) == 0 {
		b.Line("• none")
	}
	for _, s := range snap.Schedules {
		line := "• " + s.Name + " " + s.Spec
		if !s.Next.IsZero() {
			line += ", next " + s.Next.In(loc).Format("02.01 15:04:05")
		}
		b.Line(line)
	}

	if len(snap.Once) > 0 {
		b.Blank().Section("Pending timers")
		for i, o := range snap.Once {
			if i == statusTimerLines {
				b.Line(fmt.Sprintf("• and %d more", len(snap.Once)-statusTimerLines))
				break
			}
			b.Line("• " + o.Name + " at " + o.At.In(loc).Format("02.01 15:04:05"))
		}
	}

	if h.d.Feed != nil {
		if recent := h.d.Feed.Recent(statusActivityLines); len(recent) > 0 {
			b.Blank().Section("Recent activity")
			for _, ev := range recent {
				b.Line("• " + ev.Time.In(loc).Format("15:04:05") + " " + describeEvent(ev))
			}
		}
	}

	if h.d.Runtime != nil {
		b.Blank().Section("Runtime")
		writeRuntime(b, "app", h.d.Runtime())
		if sp, ok := req.Adapter.(interface{ Supervisor() *supervisor.Supervisor }); ok {
			writeRuntime(b, "telegram", sp.Supervisor().Snapshot())
		}
	}

	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

// writeRuntime renders one supervisor's counters plus any restart or
// panic anomalies. ".restart" rows are restart hosts, not workers.
func writeRuntime(b *tgui.Builder, label string, rs supervisor.SupervisorSnapshot) {
	b.Line(fmt.Sprintf("• %s active=%d started=%d", label, rs.Counters.Active, rs.Counters.Started))
	for _, g := range rs.Goroutines {
		if strings.HasSuffix(g.Name, ".restart") {
			continue
		}
		if g.Restarts == 0 && g.Panics == 0 {
			continue
		}
		b.Line(fmt.Sprintf("   %s restarts=%d panics=%d", g.Name, g.Restarts, g.Panics))
	}
	if rs.FirstError != "" {
		b.Line("   first error: " + tgui.TruncRunes(rs.FirstError, 96))
	}
}
