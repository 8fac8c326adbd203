package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "calbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, fingerprint string) (Record, error) {
	if fingerprint == "" {
		return Record{}, ErrNotFound
	}
	var (
		rec     Record
		startMS int64
		state   string
		tmpl    sql.NullString
		nextMS  sql.NullInt64
		updMS   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, start_at, state, chat_id, message_id, template, next_notify_at, updated_at
		 FROM tracked_events WHERE fingerprint = ?`, fingerprint,
	).Scan(&rec.Fingerprint, &startMS, &state, &rec.ChatID, &rec.MessageID, &tmpl, &nextMS, &updMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.Start = time.UnixMilli(startMS)
	rec.State = State(state)
	rec.Template = tmpl.String
	if nextMS.Valid {
		t := time.UnixMilli(nextMS.Int64)
		rec.NextNotifyAt = &t
	}
	rec.UpdatedAt = time.UnixMilli(updMS)
	return rec, nil
}

func (s *sqliteStore) Put(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.Fingerprint) == "" {
		return errors.New("record fingerprint is empty")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	var next any
	if rec.NextNotifyAt != nil {
		next = rec.NextNotifyAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_events(fingerprint, start_at, state, chat_id, message_id, template, next_notify_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
		   start_at=excluded.start_at, state=excluded.state,
		   chat_id=excluded.chat_id, message_id=excluded.message_id,
		   template=excluded.template, next_notify_at=excluded.next_notify_at,
		   updated_at=excluded.updated_at`,
		rec.Fingerprint, rec.Start.UnixMilli(), string(rec.State),
		rec.ChatID, rec.MessageID, nullStr(rec.Template), next, rec.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tracked_events WHERE start_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *sqliteStore) Count(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM tracked_events GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[State]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[State(st)] = n
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
