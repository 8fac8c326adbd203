package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "calbot/pkg/logx"
)

func openTestStore(t *testing.T, driver, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%q) = %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testRecord(fp string, start time.Time) Record {
	return Record{
		Fingerprint: fp,
		Start:       start,
		State:       StateAnnounced,
		ChatID:      777,
		MessageID:   41,
		Template:    "body",
		UpdatedAt:   start.Add(-time.Hour),
	}
}

// TestStoreConformance runs the same behavioral checks against every
// configured backend.
func TestStoreConformance(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()

			fresh := func(t *testing.T) Store {
				return openTestStore(t, driver, filepath.Join(t.TempDir(), "calbot.db"))
			}

			t.Run("round trip", func(t *testing.T) {
				t.Parallel()
				st := fresh(t)
				ctx := context.Background()

				next := base.Add(-15 * time.Minute)
				in := testRecord("fp1", base)
				in.NextNotifyAt = &next

				if err := st.Put(ctx, in); err != nil {
					t.Fatalf("Put() = %v", err)
				}
				got, err := st.Get(ctx, "fp1")
				if err != nil {
					t.Fatalf("Get() = %v", err)
				}
				if got.Fingerprint != in.Fingerprint || got.State != in.State {
					t.Fatalf("got %+v, want %+v", got, in)
				}
				if got.ChatID != in.ChatID || got.MessageID != in.MessageID || got.Template != in.Template {
					t.Fatalf("got %+v, want %+v", got, in)
				}
				if !got.Start.Equal(in.Start) || !got.UpdatedAt.Equal(in.UpdatedAt) {
					t.Fatalf("times = (%v, %v), want (%v, %v)", got.Start, got.UpdatedAt, in.Start, in.UpdatedAt)
				}
				if got.NextNotifyAt == nil || !got.NextNotifyAt.Equal(next) {
					t.Fatalf("NextNotifyAt = %v, want %v", got.NextNotifyAt, next)
				}
			})

			t.Run("get unknown", func(t *testing.T) {
				t.Parallel()
				st := fresh(t)

				if _, err := st.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
					t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
				}
			})

			t.Run("empty fingerprint rejected", func(t *testing.T) {
				t.Parallel()
				st := fresh(t)

				if err := st.Put(context.Background(), Record{Fingerprint: "  "}); err == nil {
					t.Fatalf("Put(empty fingerprint) = nil, want error")
				}
			})

			t.Run("zero updated at is stamped", func(t *testing.T) {
				t.Parallel()
				st := fresh(t)
				ctx := context.Background()

				rec := testRecord("fp1", base)
				rec.UpdatedAt = time.Time{}
				if err := st.Put(ctx, rec); err != nil {
					t.Fatalf("Put() = %v", err)
				}
				got, err := st.Get(ctx, "fp1")
				if err != nil {
					t.Fatalf("Get() = %v", err)
				}
				if got.UpdatedAt.IsZero() {
					t.Fatalf("UpdatedAt not stamped")
				}
			})

			t.Run("put replaces", func(t *testing.T) {
				t.Parallel()
				st := fresh(t)
				ctx := context.Background()

				first := testRecord("fp1", base)
				next := base.Add(-10 * time.Minute)
				first.NextNotifyAt = &next
				if err := st.Put(ctx, first); err != nil {
					t.Fatalf("Put() = %v", err)
				}

				second := first
				second.State = StateStarted
				second.NextNotifyAt = nil
				if err := st.Put(ctx, second); err != nil {
					t.Fatalf("Put() replace = %v", err)
				}

				got, err := st.Get(ctx, "fp1")
				if err != nil {
					t.Fatalf("Get() = %v", err)
				}
				if got.State != StateStarted {
					t.Fatalf("state = %q, want %q", got.State, StateStarted)
				}
				if got.NextNotifyAt != nil {
					t.Fatalf("NextNotifyAt = %v, want cleared", got.NextNotifyAt)
				}
			})

			t.Run("delete older than", func(t *testing.T) {
				t.Parallel()
				st := fresh(t)
				ctx := context.Background()

				for fp, start := range map[string]time.Time{
					"old":      base.Add(-10 * 24 * time.Hour),
					"recent":   base.Add(-24 * time.Hour),
					"upcoming": base.Add(time.Hour),
				} {
					if err := st.Put(ctx, testRecord(fp, start)); err != nil {
						t.Fatalf("Put(%s) = %v", fp, err)
					}
				}

				n, err := st.DeleteOlderThan(ctx, base.Add(-7*24*time.Hour))
				if err != nil {
					t.Fatalf("DeleteOlderThan() = %v", err)
				}
				if n != 1 {
					t.Fatalf("deleted %d, want 1", n)
				}
				if _, err := st.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
					t.Fatalf("Get(old) = %v, want ErrNotFound", err)
				}
				for _, fp := range []string{"recent", "upcoming"} {
					if _, err := st.Get(ctx, fp); err != nil {
						t.Fatalf("Get(%s) = %v", fp, err)
					}
				}

				// Nothing left to remove on the second pass.
				n, err = st.DeleteOlderThan(ctx, base.Add(-7*24*time.Hour))
				if err != nil || n != 0 {
					t.Fatalf("second DeleteOlderThan() = (%d, %v), want (0, nil)", n, err)
				}
			})

			t.Run("count by state", func(t *testing.T) {
				t.Parallel()
				st := fresh(t)
				ctx := context.Background()

				got, err := st.Count(ctx)
				if err != nil {
					t.Fatalf("Count() = %v", err)
				}
				if len(got) != 0 {
					t.Fatalf("Count() on empty store = %v", got)
				}

				for i, state := range []State{StateAnnounced, StateAnnounced, StateConfirmed} {
					rec := testRecord(string(rune('a'+i)), base)
					rec.State = state
					if err := st.Put(ctx, rec); err != nil {
						t.Fatalf("Put() = %v", err)
					}
				}
				got, err = st.Count(ctx)
				if err != nil {
					t.Fatalf("Count() = %v", err)
				}
				if got[StateAnnounced] != 2 || got[StateConfirmed] != 1 {
					t.Fatalf("Count() = %v, want announced=2 confirmed=1", got)
				}
			})
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "bolt", Path: filepath.Join(t.TempDir(), "x.db")}, logx.Nop()); err == nil {
		t.Fatalf("Open(bolt) = nil, want error")
	}
}

func TestOpenDefaultsToFileDriver(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := openTestStore(t, "", filepath.Join(dir, "calbot.db"))

	if err := st.Put(context.Background(), testRecord("fp1", time.Now())); err != nil {
		t.Fatalf("Put() = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "calbot.journal.jsonl")); err != nil {
		t.Fatalf("journal file missing: %v", err)
	}
}

func TestFileStoreReplaysJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "calbot.db")
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := st.Put(ctx, testRecord("fp1", base)); err != nil {
		t.Fatalf("Put(fp1) = %v", err)
	}
	if err := st.Put(ctx, testRecord("fp2", base.Add(time.Hour))); err != nil {
		t.Fatalf("Put(fp2) = %v", err)
	}
	upd := testRecord("fp1", base)
	upd.State = StateStarted
	if err := st.Put(ctx, upd); err != nil {
		t.Fatalf("Put(fp1 update) = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	st = openTestStore(t, "file", path)
	got, err := st.Get(ctx, "fp1")
	if err != nil {
		t.Fatalf("Get(fp1) after reopen = %v", err)
	}
	if got.State != StateStarted {
		t.Fatalf("fp1 state = %q, want last journaled %q", got.State, StateStarted)
	}
	if _, err := st.Get(ctx, "fp2"); err != nil {
		t.Fatalf("Get(fp2) after reopen = %v", err)
	}
}

func TestFileStoreCompactsOnBulkDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "calbot.db")
	base := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := st.Put(ctx, testRecord("old", base.Add(-10*24*time.Hour))); err != nil {
		t.Fatalf("Put(old) = %v", err)
	}
	if err := st.Put(ctx, testRecord("fresh", base)); err != nil {
		t.Fatalf("Put(fresh) = %v", err)
	}

	if n, err := st.DeleteOlderThan(ctx, base.Add(-7*24*time.Hour)); err != nil || n != 1 {
		t.Fatalf("DeleteOlderThan() = (%d, %v), want (1, nil)", n, err)
	}

	// The bulk delete rewrote the snapshot and truncated the journal.
	if _, err := os.Stat(filepath.Join(dir, "calbot.snapshot.json")); err != nil {
		t.Fatalf("snapshot missing after compact: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "calbot.journal.jsonl"))
	if err != nil {
		t.Fatalf("journal missing after compact: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("journal size = %d after compact, want 0", info.Size())
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	st = openTestStore(t, "file", path)
	if _, err := st.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(old) after reopen = %v, want ErrNotFound", err)
	}
	if _, err := st.Get(ctx, "fresh"); err != nil {
		t.Fatalf("Get(fresh) after reopen = %v", err)
	}
}

func TestFileStoreSkipsCorruptJournalLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	journal := filepath.Join(dir, "calbot.journal.jsonl")
	lines := "not json at all\n" +
		`{"op":"put","rec":{"fp":"abc","start":"2026-03-14T10:00:00Z","state":"announced","updated_at":"2026-03-14T09:00:00Z"}}` + "\n"
	if err := os.WriteFile(journal, []byte(lines), 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	st := openTestStore(t, "file", filepath.Join(dir, "calbot.db"))
	got, err := st.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if got.State != StateAnnounced {
		t.Fatalf("state = %q, want %q", got.State, StateAnnounced)
	}
}

func TestFileStorePutAfterClose(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "calbot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := st.Put(context.Background(), testRecord("fp1", time.Now())); err == nil {
		t.Fatalf("Put() after Close = nil, want error")
	}
}
