package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const yamlFixture = `telegram:
  token: "123:abc"
  notify_chat_id: -100200300
  owner_user_ids: [11, 22]
  poll_timeout: 10s
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
  telegram:
    enabled: true
    thread_id: 7
    min_level: warn
    rate_per_sec: 1
calendar:
  timezone: Europe/Moscow
  lead_window: 2h
  poll_interval: 60s
  button_ttl: 30s
  credentials_file: ./secrets/credentials.json
  accounts:
    personal:
      token_file: ./secrets/token_personal.json
      calendars:
        Alice: primary
        Work: work@group.calendar.google.com
storage:
  driver: sqlite
  path: ./data/calbot.db
  busy_timeout: 1s
retention:
  max_age: 168h
  sweep_schedule: "0 4 * * 1"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeConfig(t, "config.yaml", yamlFixture))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.NotifyChatID != -100200300 {
		t.Fatalf("notify_chat_id = %d", cfg.Telegram.NotifyChatID)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Telegram.OwnerUserIDs[0] != 11 || cfg.Telegram.OwnerUserIDs[1] != 22 {
		t.Fatalf("owner_user_ids = %v", cfg.Telegram.OwnerUserIDs)
	}
	if !cfg.Logging.Telegram.Enabled || cfg.Logging.Telegram.ThreadID != 7 {
		t.Fatalf("logging.telegram = %+v", cfg.Logging.Telegram)
	}
	acc, ok := cfg.Calendar.Accounts["personal"]
	if !ok {
		t.Fatalf("accounts = %v, want personal", cfg.Calendar.Accounts)
	}
	if acc.TokenFile != "./secrets/token_personal.json" {
		t.Fatalf("token_file = %q", acc.TokenFile)
	}
	if len(acc.Calendars) != 2 || acc.Calendars["Alice"] != "primary" {
		t.Fatalf("calendars = %v", acc.Calendars)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "1s" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Retention.SweepSchedule != "0 4 * * 1" {
		t.Fatalf("sweep_schedule = %q", cfg.Retention.SweepSchedule)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	content := `{
  "telegram": {"token": "123:abc", "notify_chat_id": -42},
  "logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}, "telegram": {"enabled": false, "thread_id": 0, "min_level": "", "rate_per_sec": 0}},
  "calendar": {"timezone": "UTC", "credentials_file": "c.json", "accounts": {"a": {"token_file": "t.json", "calendars": {"Main": "primary"}}}},
  "storage": {"driver": "file", "path": "./x.db"}
}`
	m := NewConfigManager(writeConfig(t, "config.json", content))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.Telegram.NotifyChatID != -42 || cfg.Calendar.Timezone != "UTC" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	content := `telegram:
  token: "123:abc"
  chat_id: -42
`
	m := NewConfigManager(writeConfig(t, "config.yaml", content))
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("Parse() = %v, want unknown field error", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeConfig(t, "config.json", `{"telegram":{"token":"x"}}{"extra":1}`))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("Parse() = nil, want trailing data error")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("Parse() = nil, want error")
	}
}

func TestLoadCommits(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeConfig(t, "config.yaml", yamlFixture))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get() = %p, want committed %p", got, cfg)
	}
}

func TestPublishKeepsNewestWhenFull(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused")
	ch := m.Subscribe(1)

	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)

	if got := <-ch; got != second {
		t.Fatalf("subscriber got %p, want newest %p", got, second)
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after Unsubscribe")
	}
	// Double unsubscribe is a no-op.
	m.Unsubscribe(ch)
	m.Unsubscribe(nil)
}
