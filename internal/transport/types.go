package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Edit outcomes the reminder flow must tell apart from real failures.
// Adapters wrap platform errors into these sentinels; callers use errors.Is.
var (
	// ErrEditNotModified: the edit would not change the message.
	// Happens on double-taps and replays; callers treat it as success.
	ErrEditNotModified = errors.New("edit: message not modified")

	// ErrEditTargetMissing: the referenced message no longer exists
	// (deleted by a user or by chat history cleanup).
	ErrEditTargetMissing = errors.New("edit: target message missing")
)

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	// EditMarkup replaces the inline keyboard of an existing message.
	// A nil markup strips the keyboard.
	EditMarkup(ctx context.Context, ref MessageRef, markup any) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
