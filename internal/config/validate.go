package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks a parsed config before it is committed.
// It is used both on startup and as the Watch() validator hook, so a broken
// edit never replaces a working config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if cfg.Telegram.NotifyChatID == 0 {
		return errors.New("telegram.notify_chat_id is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.Calendar.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("calendar.timezone: %w", err)
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"calendar.lead_window", cfg.Calendar.LeadWindow},
		{"calendar.poll_interval", cfg.Calendar.PollInterval},
		{"calendar.button_ttl", cfg.Calendar.ButtonTTL},
		{"retention.max_age", cfg.Retention.MaxAge},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}

	if len(cfg.Calendar.Accounts) == 0 {
		return errors.New("calendar.accounts: at least one account is required")
	}
	for name, acc := range cfg.Calendar.Accounts {
		if strings.TrimSpace(acc.TokenFile) == "" {
			return fmt.Errorf("calendar.accounts.%s.token_file is required", name)
		}
		if len(acc.Calendars) == 0 {
			return fmt.Errorf("calendar.accounts.%s.calendars: at least one calendar is required", name)
		}
		for cal, id := range acc.Calendars {
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("calendar.accounts.%s.calendars.%s: calendar id is empty", name, cal)
			}
		}
	}
	if strings.TrimSpace(cfg.Calendar.CredentialsFile) == "" {
		return errors.New("calendar.credentials_file is required")
	}

	switch d := strings.TrimSpace(strings.ToLower(cfg.Storage.Driver)); d {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q (want file or sqlite)", d)
	}

	if spec := strings.TrimSpace(cfg.Retention.SweepSchedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("retention.sweep_schedule: %w", err)
		}
	}

	if cfg.Debug.PprofEnabled {
		if addr := strings.TrimSpace(cfg.Debug.PprofListen); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("debug.pprof_listen: %w", err)
			}
		}
	}

	return nil
}
