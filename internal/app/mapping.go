package app

import (
	"fmt"
	"strings"
	"time"

	"calbot/internal/calendar"
	"calbot/internal/config"
	"calbot/internal/notify"
	"calbot/internal/observability/pprof"
	"calbot/internal/storage"
)

// mapStorageConfig translates the raw config section into storage.Config.
// There is no "disabled" mode: the tracker cannot run without its records.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "", "file", "sqlite", "sqlite3":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func mapCalendarConfig(cfg *config.Config, loc *time.Location) calendar.Config {
	accounts := make([]calendar.Account, 0, len(cfg.Calendar.Accounts))
	for name, acc := range cfg.Calendar.Accounts {
		accounts = append(accounts, calendar.Account{
			Name:      name,
			TokenFile: acc.TokenFile,
			Calendars: acc.Calendars,
		})
	}
	return calendar.Config{
		CredentialsFile: cfg.Calendar.CredentialsFile,
		Accounts:        accounts,
		Location:        loc,
	}
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	lead, err := config.ParseDurationOrDefault("calendar.lead_window", cfg.Calendar.LeadWindow, config.DefaultLeadWindow)
	if err != nil {
		return notify.Config{}, err
	}
	ttl, err := config.ParseDurationOrDefault("calendar.button_ttl", cfg.Calendar.ButtonTTL, config.DefaultButtonTTL)
	if err != nil {
		return notify.Config{}, err
	}
	maxAge, err := config.ParseDurationOrDefault("retention.max_age", cfg.Retention.MaxAge, config.DefaultRetention)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{LeadWindow: lead, ButtonTTL: ttl, Retention: maxAge}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled: cfg.Debug.PprofEnabled,
		Listen:  strings.TrimSpace(cfg.Debug.PprofListen),
		Token:   strings.TrimSpace(cfg.Debug.PprofToken),
	}
}

func pollInterval(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("calendar.poll_interval", cfg.Calendar.PollInterval, config.DefaultPollInterval)
}

func sweepSchedule(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Retention.SweepSchedule); s != "" {
		return s
	}
	return config.DefaultSweepSchedule
}
