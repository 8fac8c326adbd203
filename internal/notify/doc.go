// Package notify is the reminder core: it reconciles live calendar events
// against tracked records on each poll tick, decides which notifications to
// send, and applies user interactions (snooze, acknowledge) to the same
// records.
//
// All record mutations for one fingerprint run under a per-fingerprint lock,
// so a callback tap racing a poll tick never interleaves a read-modify-write.
package notify
