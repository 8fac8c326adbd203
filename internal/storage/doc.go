// Package storage persists tracked-event records across restarts.
//
// A record follows one calendar event through its reminder lifecycle;
// the notify engine reads and writes records keyed by event fingerprint.
package storage
