package calendar

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Event is one calendar occurrence, fetched fresh each poll.
// It is never persisted as-is; the engine reconciles it against tracked
// records by fingerprint.
type Event struct {
	Fingerprint string
	Title       string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Source      string // calendar display name the event came from
}

// Fingerprint derives the stable identifier for one occurrence from its
// source event id and start instant. Deterministic across polls; a moved
// event (start changed) yields a new fingerprint and restarts its
// notification lifecycle. md5 is fine here: the id is short, local and not
// security-sensitive.
func Fingerprint(sourceID string, start time.Time) string {
	sum := md5.Sum([]byte(sourceID + "_" + start.Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])[:16]
}

// DayRange returns the [start, end) bounds of the day daysOffset days from
// now in the given location.
func DayRange(now time.Time, loc *time.Location, daysOffset int) (time.Time, time.Time) {
	d := now.In(loc).AddDate(0, 0, daysOffset)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// WeekRange returns the [start, end) bounds of the Monday-based week
// weeksOffset weeks from the current one.
func WeekRange(now time.Time, loc *time.Location, weeksOffset int) (time.Time, time.Time) {
	d := now.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	back := (int(start.Weekday()) + 6) % 7 // Monday = 0
	start = start.AddDate(0, 0, -back+7*weeksOffset)
	return start, start.AddDate(0, 0, 7)
}
