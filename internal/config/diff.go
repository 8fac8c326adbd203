package config

import (
	"reflect"
	"sort"
	"strings"

	logx "calbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.NotifyChatID != newCfg.Telegram.NotifyChatID ||
		oldCfg.Telegram.NotifyThreadID != newCfg.Telegram.NotifyThreadID ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int64("telegram.notify_chat_id", newCfg.Telegram.NotifyChatID),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
		)
	}

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Calendar (account tokens are file paths; names only in attrs)
	if !reflect.DeepEqual(oldCfg.Calendar, newCfg.Calendar) {
		changed = append(changed, "calendar")
		nCals := 0
		for _, acc := range newCfg.Calendar.Accounts {
			nCals += len(acc.Calendars)
		}
		attrs = append(attrs,
			logx.String("calendar.timezone", strings.TrimSpace(newCfg.Calendar.Timezone)),
			logx.String("calendar.lead_window", strings.TrimSpace(newCfg.Calendar.LeadWindow)),
			logx.String("calendar.poll_interval", strings.TrimSpace(newCfg.Calendar.PollInterval)),
			logx.String("calendar.button_ttl", strings.TrimSpace(newCfg.Calendar.ButtonTTL)),
			logx.Int("calendar.accounts", len(newCfg.Calendar.Accounts)),
			logx.Int("calendar.calendars", nCals),
		)
	}

	// Storage
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Retention
	if !reflect.DeepEqual(oldCfg.Retention, newCfg.Retention) {
		changed = append(changed, "retention")
		attrs = append(attrs,
			logx.String("retention.max_age", strings.TrimSpace(newCfg.Retention.MaxAge)),
			logx.String("retention.sweep_schedule", strings.TrimSpace(newCfg.Retention.SweepSchedule)),
		)
	}

	// Debug (never log the pprof token)
	if oldCfg.Debug.PprofEnabled != newCfg.Debug.PprofEnabled ||
		strings.TrimSpace(oldCfg.Debug.PprofListen) != strings.TrimSpace(newCfg.Debug.PprofListen) {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.pprof_enabled", newCfg.Debug.PprofEnabled),
			logx.String("debug.pprof_listen", strings.TrimSpace(newCfg.Debug.PprofListen)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
