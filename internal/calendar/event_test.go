package calendar

import (
	"testing"
	"time"
)

func TestFingerprintGolden(t *testing.T) {
	t.Parallel()
	utc := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	msk := time.Date(2026, 3, 14, 10, 30, 0, 0, time.FixedZone("MSK", 3*3600))

	tests := []struct {
		name  string
		id    string
		start time.Time
		want  string
	}{
		{name: "utc", id: "abc123", start: utc, want: "7fb33580bb803e01"},
		{name: "fixed zone", id: "abc123", start: msk, want: "8d5e8de4722db1de"},
		{name: "other id", id: "evt42", start: utc, want: "402a1ccebff470af"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint(tt.id, tt.start)
			if got != tt.want {
				t.Fatalf("Fingerprint(%q, %v) = %q, want %q", tt.id, tt.start, got, tt.want)
			}
		})
	}
}

func TestFingerprintProperties(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	fp := Fingerprint("abc123", start)
	if len(fp) != 16 {
		t.Fatalf("len = %d, want 16", len(fp))
	}
	for _, r := range fp {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("non-hex rune %q in %q", r, fp)
		}
	}

	if Fingerprint("abc123", start) != fp {
		t.Fatal("fingerprint is not deterministic")
	}
	if Fingerprint("abc123", start.Add(time.Minute)) == fp {
		t.Fatal("moved start must change the fingerprint")
	}
	if Fingerprint("abc124", start) == fp {
		t.Fatal("different id must change the fingerprint")
	}
}

func TestDayRange(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2026, 3, 14, 17, 45, 12, 0, loc)

	from, to := DayRange(now, loc, 0)
	if want := time.Date(2026, 3, 14, 0, 0, 0, 0, loc); !from.Equal(want) {
		t.Fatalf("from = %v, want %v", from, want)
	}
	if want := time.Date(2026, 3, 15, 0, 0, 0, 0, loc); !to.Equal(want) {
		t.Fatalf("to = %v, want %v", to, want)
	}

	from, to = DayRange(now, loc, 1)
	if want := time.Date(2026, 3, 15, 0, 0, 0, 0, loc); !from.Equal(want) {
		t.Fatalf("tomorrow from = %v, want %v", from, want)
	}
	if want := time.Date(2026, 3, 16, 0, 0, 0, 0, loc); !to.Equal(want) {
		t.Fatalf("tomorrow to = %v, want %v", to, want)
	}
}

func TestWeekRange(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)

	// Saturday sits in the week that started the previous Monday.
	from, to := WeekRange(time.Date(2026, 3, 14, 17, 0, 0, 0, loc), loc, 0)
	if !from.Equal(monday) {
		t.Fatalf("from = %v, want %v", from, monday)
	}
	if want := monday.AddDate(0, 0, 7); !to.Equal(want) {
		t.Fatalf("to = %v, want %v", to, want)
	}

	// Sunday is the last day of the week, not the first.
	from, _ = WeekRange(time.Date(2026, 3, 15, 8, 0, 0, 0, loc), loc, 0)
	if !from.Equal(monday) {
		t.Fatalf("sunday from = %v, want %v", from, monday)
	}

	// A Monday is its own week start.
	from, _ = WeekRange(monday.Add(9*time.Hour), loc, 0)
	if !from.Equal(monday) {
		t.Fatalf("monday from = %v, want %v", from, monday)
	}

	// Next week.
	from, to = WeekRange(time.Date(2026, 3, 14, 17, 0, 0, 0, loc), loc, 1)
	if want := time.Date(2026, 3, 16, 0, 0, 0, 0, loc); !from.Equal(want) {
		t.Fatalf("next week from = %v, want %v", from, want)
	}
	if want := time.Date(2026, 3, 23, 0, 0, 0, 0, loc); !to.Equal(want) {
		t.Fatalf("next week to = %v, want %v", to, want)
	}
}
