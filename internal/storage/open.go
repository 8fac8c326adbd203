package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "calbot/pkg/logx"
)

// Store is the tracked-event persistence API used by the notify engine.
type Store interface {
	// Get returns the record for a fingerprint, or ErrNotFound.
	Get(ctx context.Context, fingerprint string) (Record, error)
	// Put inserts or replaces the record keyed by its fingerprint.
	Put(ctx context.Context, rec Record) error
	// DeleteOlderThan removes records whose event start is before cutoff
	// and reports how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// Count returns the number of records per state.
	Count(ctx context.Context) (map[State]int, error)
	Close() error
}

const defaultPath = "./data/calbot.db"

// Open initializes the configured store.
// The store is mandatory (the engine cannot run without one), so an empty
// driver falls back to the file backend rather than disabling persistence.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "file"
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = defaultPath
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
