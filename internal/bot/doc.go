// Package bot routes incoming chat updates.
//
// Slash commands (/today, /week, /status, ...) are answered directly from
// the calendar and the tracker state; inline-button callbacks are handed
// to the reminder flow untouched. Routing is flat: the bot has a handful
// of single-word commands and no subcommand grammar.
package bot
