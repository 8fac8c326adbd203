// Package scheduler provides the bot's timing primitives on top of robfig/cron:
//
//   - Recurring triggers (cron specs and fixed intervals) with an
//     overlap-skip guard, so a slow calendar poll never stacks up.
//   - Named one-time timers (AddOnce) with upsert semantics: re-arming a name
//     replaces the previous timer, and stale callbacks are ignored.
//
// Jobs run directly on the cron goroutine pool with panic capture and an
// optional per-job timeout.
package scheduler
