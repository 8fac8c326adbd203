package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@weekly", kind: SpecCron, source: "cron"},
		{name: "every descriptor", raw: "@every 55m", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "prefixed hhmm", raw: "every:00:45", kind: SpecInterval, source: "hhmm", duration: 45 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0s", "-5m", "cron:", "interval:", "02:75"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q) = nil, want error", raw)
		}
	}
}

func TestParseHHMMDuration(t *testing.T) {
	t.Parallel()

	d, src, err := parseHHMMDuration("02:30")
	if err != nil {
		t.Fatalf("parseHHMMDuration error: %v", err)
	}
	if d != 2*time.Hour+30*time.Minute || src != "hhmm" {
		t.Fatalf("unexpected result: %v %s", d, src)
	}

	if d, _, err := parseHHMMDuration("100:00"); err != nil || d != 100*time.Hour {
		t.Fatalf("100:00 = (%v, %v), want 100h", d, err)
	}

	if _, _, err := parseHHMMDuration("02:75"); err == nil {
		t.Fatal("expected error for invalid minutes")
	}
	if _, _, err := parseHHMMDuration("00:00"); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
