package notify

import (
	"strings"
	"time"
	"unicode/utf8"

	"calbot/pkg/tgui"
)

// Status selects the presentation of a reminder message. The body template
// is stored on the record at first sighting; later edits only swap the
// header, so they never need to re-fetch the source event.
type Status string

const (
	StatusAnnounced Status = "announced"
	StatusSoon      Status = "soon"
	StatusStarted   Status = "started"
	StatusConfirmed Status = "confirmed"
)

const titleWidth = 25

// FormatEvent renders one event as a fixed-width code line:
// "📌 <code>title padded to 25   | 02.01 15:04</code>".
func FormatEvent(title string, start time.Time) string {
	t := title
	if utf8.RuneCountInString(t) > titleWidth {
		r := []rune(t)
		t = string(r[:titleWidth-3]) + "..."
	}
	if pad := titleWidth - utf8.RuneCountInString(t); pad > 0 {
		t += strings.Repeat(" ", pad)
	}
	return "📌 " + tgui.Code(t+" | "+start.Format("02.01 15:04")).String()
}

// Template renders the stored per-event body: the calendar it came from
// plus the event line.
func Template(calendarName, title string, start time.Time) string {
	return "👤 " + tgui.UH(tgui.B(calendarName)).String() + "\n" + FormatEvent(title, start)
}

// BuildMessage puts the status header above the stored template. The
// confirmed variant de-emphasizes the body by quoting it.
func BuildMessage(status Status, template string) string {
	switch status {
	case StatusAnnounced:
		return "🗓 " + tgui.B("Upcoming event").String() + "\n\n" + template
	case StatusSoon:
		return "⏰ " + tgui.B("Reminder").String() + "\n\n" + template
	case StatusStarted:
		return "▶️ " + tgui.B("Event started").String() + "\n\n" + template
	case StatusConfirmed:
		return "✅ " + tgui.B("Confirmed").String() + "\n\n" + tgui.QuoteH(tgui.Raw(template)).String()
	default:
		return template
	}
}
