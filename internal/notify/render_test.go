package notify

import (
	"strings"
	"testing"
	"time"
)

func TestFormatEvent(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "short title padded to column",
			title: "Standup",
			want:  "📌 <code>Standup" + strings.Repeat(" ", 18) + " | 14.03 10:30</code>",
		},
		{
			name:  "exact width unchanged",
			title: "1234567890123456789012345",
			want:  "📌 <code>1234567890123456789012345 | 14.03 10:30</code>",
		},
		{
			name:  "long title truncated with ellipsis",
			title: "abcdefghijklmnopqrstuvwxyz1234",
			want:  "📌 <code>abcdefghijklmnopqrstuv... | 14.03 10:30</code>",
		},
		{
			name:  "truncation counts runes not bytes",
			title: "Встреча с командой разработки",
			want:  "📌 <code>Встреча с командой раз... | 14.03 10:30</code>",
		},
		{
			name:  "html escaped after padding",
			title: "Q&A <review>",
			want:  "📌 <code>Q&amp;A &lt;review&gt;" + strings.Repeat(" ", 13) + " | 14.03 10:30</code>",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := FormatEvent(tt.title, start); got != tt.want {
				t.Fatalf("FormatEvent(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestTemplate(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	got := Template("Alice", "Standup", start)
	want := "👤 <u><b>Alice</b></u>\n📌 <code>Standup" + strings.Repeat(" ", 18) + " | 14.03 10:30</code>"
	if got != want {
		t.Fatalf("Template() = %q, want %q", got, want)
	}

	// Calendar names pass through the same escaping as titles.
	if got := Template("R&D", "Standup", start); !strings.HasPrefix(got, "👤 <u><b>R&amp;D</b></u>\n") {
		t.Fatalf("Template() = %q, want escaped calendar name", got)
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status Status
		want   string
	}{
		{name: "announced", status: StatusAnnounced, want: "🗓 <b>Upcoming event</b>\n\nbody"},
		{name: "soon", status: StatusSoon, want: "⏰ <b>Reminder</b>\n\nbody"},
		{name: "started", status: StatusStarted, want: "▶️ <b>Event started</b>\n\nbody"},
		{name: "confirmed quotes the body", status: StatusConfirmed, want: "✅ <b>Confirmed</b>\n\n<blockquote>body</blockquote>"},
		{name: "unknown status falls back to body", status: Status("later"), want: "body"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := BuildMessage(tt.status, "body"); got != tt.want {
				t.Fatalf("BuildMessage(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}
