package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no record exists for a fingerprint.
var ErrNotFound = errors.New("storage: record not found")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
//
// An empty Driver falls back to "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the lifecycle position of a tracked event.
type State string

const (
	// StateNew: seen by a poll, nothing sent yet.
	StateNew State = "new"
	// StateAnnounced: first reminder message is out, controls attached.
	StateAnnounced State = "announced"
	// StateWaiting: user picked a follow-up delay; NextNotifyAt holds it.
	StateWaiting State = "waiting"
	// StateConfirmed: user acknowledged; terminal for the polling path.
	StateConfirmed State = "confirmed"
	// StateStarted: event start time passed; terminal unless confirmed later.
	StateStarted State = "started"
)

// States lists all states in lifecycle order, for /status rendering.
func States() []State {
	return []State{StateNew, StateAnnounced, StateWaiting, StateConfirmed, StateStarted}
}

// Record tracks one calendar event through its reminder lifecycle.
// Keep it compact and schema-stable.
type Record struct {
	Fingerprint  string     `json:"fp"`
	Start        time.Time  `json:"start"`
	State        State      `json:"state"`
	ChatID       int64      `json:"chat_id,omitempty"`
	MessageID    int        `json:"message_id,omitempty"`
	Template     string     `json:"template,omitempty"`
	NextNotifyAt *time.Time `json:"next_notify_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
