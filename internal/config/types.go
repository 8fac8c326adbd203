package config

import "time"

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Calendar  CalendarConfig  `json:"calendar"`
	Storage   StorageConfig   `json:"storage"`
	Retention RetentionConfig `json:"retention,omitempty"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// NotifyChatID is the single chat all reminders go to.
	NotifyChatID   int64 `json:"notify_chat_id"`
	NotifyThreadID int   `json:"notify_thread_id,omitempty"`

	// OwnerUserIDs may restrict who can interact with the bot (empty = anyone).
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// CalendarConfig controls which calendars are polled and how reminders are timed.
//
// All durations are Go duration strings (e.g. "30s", "2h").
type CalendarConfig struct {
	// Timezone for event parsing, schedules and message formatting
	// (IANA name, e.g. "Europe/Moscow").
	Timezone string `json:"timezone"`

	// LeadWindow is how far ahead of an event the poller starts tracking it.
	LeadWindow string `json:"lead_window,omitempty"` // default: "2h"

	// PollInterval is the calendar poll cadence.
	PollInterval string `json:"poll_interval,omitempty"` // default: "60s"

	// ButtonTTL is how long a snooze menu stays open before the default
	// controls are restored.
	ButtonTTL string `json:"button_ttl,omitempty"` // default: "30s"

	// CredentialsFile is the Google OAuth2 client secret JSON.
	CredentialsFile string `json:"credentials_file"`

	// Accounts maps an account label to its stored token and calendars.
	Accounts map[string]AccountConfig `json:"accounts"`
}

// AccountConfig is one Google account with a stored OAuth2 token.
type AccountConfig struct {
	TokenFile string `json:"token_file"`

	// Calendars maps a display name (shown in messages) to a calendar id.
	Calendars map[string]string `json:"calendars"`
}

// StorageConfig controls the tracked-event persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/calbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RetentionConfig controls the weekly cleanup of stale tracked events.
type RetentionConfig struct {
	// MaxAge: tracked events whose start is older than this are deleted.
	MaxAge string `json:"max_age,omitempty"` // default: "168h"

	// SweepSchedule is a standard 5-field cron expression.
	SweepSchedule string `json:"sweep_schedule,omitempty"` // default: "0 4 * * 1"
}

// DebugConfig exposes the optional pprof endpoint. Binding beyond loopback
// requires a token; the server refuses to start otherwise.
type DebugConfig struct {
	PprofEnabled bool   `json:"pprof_enabled,omitempty"`
	PprofListen  string `json:"pprof_listen,omitempty"` // default: "127.0.0.1:6060"
	PprofToken   string `json:"pprof_token,omitempty"`
}

// Defaults applied where config fields are omitted.
const (
	DefaultLeadWindow    = 2 * time.Hour
	DefaultPollInterval  = time.Minute
	DefaultButtonTTL     = 30 * time.Second
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultSweepSchedule = "0 4 * * 1"
)
