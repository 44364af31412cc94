package tgui

import (
	"context"
	"strings"
	"unicode/utf8"

	kit "steamwatch/internal/transport"
)

// MaxCaptionRunes is Telegram's limit for a photo caption.
const MaxCaptionRunes = 1024

// Message is a rendered UI payload: text + send options, optionally shown as
// a photo caption.
type Message struct {
	Text  string
	Photo string // image URL; empty sends plain text
	Opt   *kit.SendOptions
}

// Send delivers the Message. A photo whose caption would be too long is sent
// as plain text instead.
func (m Message) Send(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) (kit.MessageRef, error) {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{}
	}
	if m.Photo != "" && utf8.RuneCountInString(m.Text) <= MaxCaptionRunes {
		return ad.SendPhoto(ctx, to, kit.Photo{URL: m.Photo, Caption: m.Text}, m.Opt)
	}
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

// Edit replaces the text of ref. Photos cannot be edited into text, so the
// photo is ignored.
func (m Message) Edit(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	if m.Opt == nil {
		m.Opt = &kit.SendOptions{}
	}
	return ad.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder is the message builder.
// Default: ParseMode=HTML, DisablePreview=true.
type Builder struct {
	disablePreview bool
	rm             *Inline
	photo          string
	lines          []string
}

func New() *Builder {
	return &Builder{disablePreview: true}
}

// DisablePreview sets DisableWebPagePreview.
func (b *Builder) DisablePreview(v bool) *Builder {
	b.disablePreview = v
	return b
}

// Inline attaches an inline keyboard.
func (b *Builder) Inline(kb *Inline) *Builder {
	b.rm = kb
	return b
}

// Photo turns the message into a photo with the text as caption.
func (b *Builder) Photo(url string) *Builder {
	b.photo = strings.TrimSpace(url)
	return b
}

// Title adds a bold title line. Emoji is optional.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	if e := strings.TrimSpace(emoji); e != "" {
		b.lines = append(b.lines, Esc(e).String()+" "+B(t).String())
		return b
	}
	b.lines = append(b.lines, B(t).String())
	return b
}

// Line adds a single escaped line.
func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		b.lines = append(b.lines, "")
		return b
	}
	b.lines = append(b.lines, Esc(s).String())
	return b
}

// HTML appends already-safe HTML as one line.
func (b *Builder) HTML(h H) *Builder {
	b.lines = append(b.lines, h.String())
	return b
}

// Blank inserts an empty line.
func (b *Builder) Blank() *Builder { return b.Line("") }

// Bullets adds bullet lines.
func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		b.Line("• " + it)
	}
	return b
}

// KV adds an "emoji key: value" row with the key in bold.
func (b *Builder) KV(emoji, key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	line := B(key + ":").String() + " " + Esc(strings.TrimSpace(value)).String()
	if e := strings.TrimSpace(emoji); e != "" {
		line = e + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

// Build produces a ready-to-send Message.
func (b *Builder) Build() Message {
	text := strings.Trim(strings.Join(b.lines, "\n"), "\n")
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: b.disablePreview}
	if b.rm != nil {
		opt.ReplyMarkupAdapter = b.rm.Markup()
	}
	return Message{Text: text, Photo: b.photo, Opt: opt}
}
