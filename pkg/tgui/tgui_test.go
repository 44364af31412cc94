package tgui

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestFormatRub(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{49900, "499₽"},
		{49950, "499.5₽"},
		{1999, "19.99₽"},
		{5, "0.05₽"},
		{0, "0₽"},
	}
	for _, tt := range tests {
		if got := FormatRub(tt.in); got != tt.want {
			t.Fatalf("FormatRub(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := PriceOrFree(0); got != "Бесплатно" {
		t.Fatalf("PriceOrFree(0) = %q", got)
	}
}

func TestCallbackData(t *testing.T) {
	d := Data("sw", "info", "730")
	if d != "sw:info:730" {
		t.Fatalf("Data = %q", d)
	}
	ns, action, payload, ok := ParseData(d)
	if !ok || ns != "sw" || action != "info" || payload != "730" {
		t.Fatalf("ParseData(%q) = %q %q %q %v", d, ns, action, payload, ok)
	}
	if _, action, payload, ok := ParseData("sw:menu"); !ok || action != "menu" || payload != "" {
		t.Fatalf("ParseData without payload: %q %q %v", action, payload, ok)
	}
	for _, bad := range []string{"", "sw", ":x", "sw:"} {
		if _, _, _, ok := ParseData(bad); ok {
			t.Fatalf("ParseData(%q) should fail", bad)
		}
	}
	if err := CheckData(strings.Repeat("x", MaxCallbackDataLen+1)); err != ErrCallbackDataTooLong {
		t.Fatalf("CheckData err = %v", err)
	}
}

func TestTruncRunes(t *testing.T) {
	if got := TruncRunes("Ведьмак 3: Дикая Охота", 7); got != "Ведьмак..." {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("Portal", 15); got != "Portal" {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("x", 0); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 25)
	p := Paginate(items, 1, 10)
	if len(p.Items) != 10 || !p.HasPrev || !p.HasNext {
		t.Fatalf("page 1: %+v", p)
	}
	if got := p.Label(); got != "Страница 2/3 • 11–20 из 25" {
		t.Fatalf("Label = %q", got)
	}
	last := Paginate(items, 9, 10)
	if last.Number != 2 || len(last.Items) != 5 || last.HasNext {
		t.Fatalf("clamped page: %+v", last)
	}
	if got := Paginate([]int(nil), 0, 10).Label(); got != "Страница 1/1" {
		t.Fatalf("empty Label = %q", got)
	}
}

func TestBuilderEscapesAndAttachesMarkup(t *testing.T) {
	kb := NewInline().Row(Btn("a", Data("sw", "menu", "")))
	msg := New().
		Title("🎮", "Tom & Jerry").
		KV("💰", "Цена", "<b>1₽</b>").
		Blank().
		HTML(Link("Steam", "https://store.steampowered.com/app/1")).
		Inline(kb).
		Photo("https://cdn/x.jpg").
		Build()

	want := "🎮 <b>Tom &amp; Jerry</b>\n💰 <b>Цена:</b> &lt;b&gt;1₽&lt;/b&gt;\n\n<a href=\"https://store.steampowered.com/app/1\">Steam</a>"
	if msg.Text != want {
		t.Fatalf("Text =\n%s\nwant\n%s", msg.Text, want)
	}
	if msg.Opt.ParseMode != "HTML" || !msg.Opt.DisablePreview || msg.Opt.ReplyMarkupAdapter == nil {
		t.Fatalf("unexpected options %+v", msg.Opt)
	}
	if msg.Photo != "https://cdn/x.jpg" {
		t.Fatalf("Photo = %q", msg.Photo)
	}
}

func TestGrid2(t *testing.T) {
	kb := Grid2([]tele.Btn{Btn("1", "a"), Btn("2", "b"), Btn("3", "c")}, Btn("back", "d"))
	if kb.Rows() != 3 {
		t.Fatalf("rows = %d, want 3", kb.Rows())
	}
	rows := kb.Markup().InlineKeyboard
	if len(rows[0]) != 2 || len(rows[1]) != 1 || rows[2][0].Text != "back" {
		t.Fatalf("unexpected layout %+v", rows)
	}
}
