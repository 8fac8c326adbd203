package app

// StopReason records why the app is shutting down; it only feeds logs.
type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)
