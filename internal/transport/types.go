package transport

import (
	"context"
	"time"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	UpdateInline   UpdateKind = "inline"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
	Inline   *InlineQuery
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
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

// InlineQuery is text typed after the bot's @username in any chat.
type InlineQuery struct {
	ID     string
	FromID int64
	Text   string
	Offset string
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

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Photo is an image referenced by URL with an optional caption.
// Caption follows the same ParseMode as the accompanying SendOptions.
type Photo struct {
	URL     string
	Caption string
}

// Notification is one outbound message queued by the notifier.
// Key identifies the logical event for dedup; empty disables dedup.
type Notification struct {
	Key     string
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo Photo, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// InlineArticle is one inline query result; choosing it sends MessageText
// on behalf of the user.
type InlineArticle struct {
	ID                 string
	Title              string
	Description        string
	ThumbURL           string
	MessageText        string
	ReplyMarkupAdapter any
}

type InlineAnswer struct {
	Results   []InlineArticle
	CacheTime time.Duration
	Personal  bool

	// StartText, when set, shows a button above the results that opens a
	// private chat with the bot and sends /start StartParam.
	StartText  string
	StartParam string
}

// InlineAnswerer is an optional interface for adapters that support inline mode.
type InlineAnswerer interface {
	AnswerInline(ctx context.Context, queryID string, ans InlineAnswer) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface for adapters that can publish
// a platform command menu (Telegram setMyCommands).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
