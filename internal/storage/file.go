package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "calbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of all records)
//   - <prefix>.journal.jsonl (append-only journal of puts/deletes)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	records      map[string]Record

	writes int
}

type journalEntry struct {
	Op  string  `json:"op"` // "put" or "del"
	Rec *Record `json:"rec,omitempty"`
	Fp  string  `json:"fp,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	records := map[string]Record{}
	_ = loadSnapshot(snapPath, records)
	_ = replayJournal(journalPath, records)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		records:      records,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Get(ctx context.Context, fingerprint string) (Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fingerprint]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *fileStore) Put(ctx context.Context, rec Record) error {
	_ = ctx
	if strings.TrimSpace(rec.Fingerprint) == "" {
		return errors.New("record fingerprint is empty")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("journal closed")
	}
	s.records[rec.Fingerprint] = rec

	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(journalEntry{Op: "put", Rec: &rec}); err != nil {
		return err
	}
	s.writes++
	if s.writes%500 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("snapshot compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return 0, errors.New("journal closed")
	}
	removed := 0
	for fp, rec := range s.records {
		if rec.Start.Before(cutoff) {
			delete(s.records, fp)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	// A bulk delete rewrites the snapshot instead of journaling each removal.
	if err := s.compactLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *fileStore) Count(ctx context.Context) (map[State]int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[State]int{}
	for _, rec := range s.records {
		out[rec.State]++
	}
	return out, nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]Record
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]Record) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		switch e.Op {
		case "put":
			if e.Rec != nil && e.Rec.Fingerprint != "" {
				out[e.Rec.Fingerprint] = *e.Rec
			}
		case "del":
			if e.Fp != "" {
				delete(out, e.Fp)
			}
		}
	}
	return sc.Err()
}
