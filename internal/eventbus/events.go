package eventbus

// Event types published by calbot components.
//
// Payloads (Data) are small structs or maps; /status renders a bounded
// recent-activity feed from these.
const (
	EventReminderAnnounced = "reminder.announced"
	EventReminderNotified  = "reminder.notified"
	EventReminderStarted   = "reminder.started"
	EventReminderConfirmed = "reminder.confirmed"
	EventReminderSnoozed   = "reminder.snoozed"

	EventPollCompleted  = "poll.completed"
	EventSweepCompleted = "sweep.completed"
)
