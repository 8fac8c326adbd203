package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:        "123:abc",
			NotifyChatID: -100200300,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		Calendar: CalendarConfig{
			Timezone:        "Europe/Moscow",
			CredentialsFile: "./secrets/credentials.json",
			Accounts: map[string]AccountConfig{
				"personal": {
					TokenFile: "./secrets/token_personal.json",
					Calendars: map[string]string{"Alice": "primary"},
				},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "minimal valid",
			mutate: func(cfg *Config) {},
		},
		{
			name: "all optional fields set",
			mutate: func(cfg *Config) {
				cfg.Telegram.PollTimeout = "10s"
				cfg.Calendar.LeadWindow = "2h"
				cfg.Calendar.PollInterval = "60s"
				cfg.Calendar.ButtonTTL = "30s"
				cfg.Storage = StorageConfig{Driver: "sqlite", Path: "./x.db", BusyTimeout: "1s"}
				cfg.Retention = RetentionConfig{MaxAge: "168h", SweepSchedule: "0 4 * * 1"}
			},
		},
		{
			name:    "missing token",
			mutate:  func(cfg *Config) { cfg.Telegram.Token = " " },
			wantErr: "telegram.token",
		},
		{
			name:    "missing notify chat",
			mutate:  func(cfg *Config) { cfg.Telegram.NotifyChatID = 0 },
			wantErr: "telegram.notify_chat_id",
		},
		{
			name:    "bad timezone",
			mutate:  func(cfg *Config) { cfg.Calendar.Timezone = "Mars/Olympus" },
			wantErr: "calendar.timezone",
		},
		{
			name:    "bad lead window",
			mutate:  func(cfg *Config) { cfg.Calendar.LeadWindow = "fast" },
			wantErr: "calendar.lead_window",
		},
		{
			name:    "negative poll interval",
			mutate:  func(cfg *Config) { cfg.Calendar.PollInterval = "-30s" },
			wantErr: "calendar.poll_interval",
		},
		{
			name:    "no accounts",
			mutate:  func(cfg *Config) { cfg.Calendar.Accounts = nil },
			wantErr: "calendar.accounts",
		},
		{
			name: "account without token file",
			mutate: func(cfg *Config) {
				cfg.Calendar.Accounts["personal"] = AccountConfig{
					Calendars: map[string]string{"Alice": "primary"},
				}
			},
			wantErr: "token_file",
		},
		{
			name: "account without calendars",
			mutate: func(cfg *Config) {
				cfg.Calendar.Accounts["personal"] = AccountConfig{TokenFile: "t.json"}
			},
			wantErr: "calendars",
		},
		{
			name: "empty calendar id",
			mutate: func(cfg *Config) {
				cfg.Calendar.Accounts["personal"] = AccountConfig{
					TokenFile: "t.json",
					Calendars: map[string]string{"Alice": " "},
				}
			},
			wantErr: "calendar id is empty",
		},
		{
			name:    "missing credentials file",
			mutate:  func(cfg *Config) { cfg.Calendar.CredentialsFile = "" },
			wantErr: "calendar.credentials_file",
		},
		{
			name:    "unknown storage driver",
			mutate:  func(cfg *Config) { cfg.Storage.Driver = "bolt" },
			wantErr: "storage.driver",
		},
		{
			name:   "sqlite3 alias accepted",
			mutate: func(cfg *Config) { cfg.Storage.Driver = "sqlite3" },
		},
		{
			name:    "bad sweep schedule",
			mutate:  func(cfg *Config) { cfg.Retention.SweepSchedule = "61 4 * * 1" },
			wantErr: "retention.sweep_schedule",
		},
		{
			name: "pprof listen without port",
			mutate: func(cfg *Config) {
				cfg.Debug = DebugConfig{PprofEnabled: true, PprofListen: "localhost"}
			},
			wantErr: "debug.pprof_listen",
		},
		{
			name: "pprof enabled with defaults",
			mutate: func(cfg *Config) {
				cfg.Debug = DebugConfig{PprofEnabled: true}
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()
		if err := Validate(nil); err == nil {
			t.Fatalf("Validate(nil) = nil, want error")
		}
	})
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty means unset", raw: "", want: 0},
		{name: "spaces trimmed", raw: " 2h ", want: 2 * time.Hour},
		{name: "seconds", raw: "90s", want: 90 * time.Second},
		{name: "garbage", raw: "fast", wantErr: true},
		{name: "negative", raw: "-1s", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDurationField("field", tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDurationField(%q) = nil, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDurationField(%q) = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	def := 45 * time.Second

	if got, err := ParseDurationOrDefault("field", "", def); err != nil || got != def {
		t.Fatalf("empty = (%v, %v), want default", got, err)
	}
	if got, err := ParseDurationOrDefault("field", "0s", def); err != nil || got != def {
		t.Fatalf("zero = (%v, %v), want default", got, err)
	}
	if got, err := ParseDurationOrDefault("field", "2m", def); err != nil || got != 2*time.Minute {
		t.Fatalf("set = (%v, %v), want 2m", got, err)
	}
	if _, err := ParseDurationOrDefault("field", "nope", def); err == nil {
		t.Fatalf("garbage = nil, want error")
	}
}
