// Package calendar fetches events from Google Calendar accounts and derives
// the stable fingerprints the notify engine tracks them by.
package calendar
