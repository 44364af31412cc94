package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row (buttons) to the inline keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Rows is the number of rows added so far.
func (i *Inline) Rows() int { return len(i.rows) }

// Markup returns underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// URLBtn creates a URL button.
func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// QueryChatBtn opens inline mode in the current chat with query prefilled.
func QueryChatBtn(text, query string) tele.Btn {
	return tele.Btn{Text: text, InlineQueryChat: query}
}

// Grid2 lays buttons out in two columns; extra rows are appended one per row.
func Grid2(buttons []tele.Btn, extra ...tele.Btn) *Inline {
	kb := NewInline()
	for i := 0; i < len(buttons); i += 2 {
		end := min(i+2, len(buttons))
		kb.Row(buttons[i:end]...)
	}
	for _, b := range extra {
		kb.Row(b)
	}
	return kb
}
