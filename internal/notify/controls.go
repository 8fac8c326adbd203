package notify

import (
	"fmt"

	"calbot/pkg/tgui"

	tele "gopkg.in/telebot.v4"
)

// DefaultControls is the two-button layout attached to announce and
// follow-up messages.
func DefaultControls(fp string) *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("🔔 Remind me", tgui.Data("notify", fp))).
		Row(tgui.Btn("✅ Confirm", tgui.Data("confirm", fp))).
		Markup()
}

// SnoozeMenu lists the offered minute offsets, one button per row.
func SnoozeMenu(fp string, minutes []int) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, m := range minutes {
		label := fmt.Sprintf("⏱ %d min before", m)
		if m == 0 {
			label = "⏱ At event time"
		}
		kb.Row(tgui.Btn(label, tgui.Data("notify_set", fp, fmt.Sprintf("%d", m))))
	}
	return kb.Markup()
}
