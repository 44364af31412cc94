package telegram

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "steamwatch/internal/transport"
	logx "steamwatch/pkg/logx"
)

func TestSplitShortTextIsUntouched(t *testing.T) {
	got := splitTelegramText("привет", 10, "HTML")
	if len(got) != 1 || got[0] != "привет" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitPrefersNewlines(t *testing.T) {
	line := strings.Repeat("я", 30)
	text := strings.Join([]string{line, line, line, line}, "\n")
	got := splitTelegramText(text, 70, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	for _, c := range got {
		if utf8.RuneCountInString(c) > 70 {
			t.Fatalf("chunk too long: %d runes", utf8.RuneCountInString(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk not trimmed: %q", c)
		}
	}
}

func TestSplitAvoidsCuttingTags(t *testing.T) {
	text := strings.Repeat("a", 18) + "<b>x</b>" + strings.Repeat("c", 20)
	got := splitTelegramText(text, 20, "HTML")
	if !strings.HasSuffix(got[0], "a") || !strings.HasPrefix(got[1], "<b>") {
		t.Fatalf("tag was split: %q", got)
	}
	if strings.Join(got, "") != text {
		t.Fatalf("content lost: %q", got)
	}
}

func TestMenuCommandsNormalizes(t *testing.T) {
	cmds := menuCommands([]kit.BotCommand{
		{Command: "/start", Description: "Главное меню"},
		{Command: " "},
		{Command: "help"},
		{Command: "long", Description: strings.Repeat("д", 300)},
	})
	if len(cmds) != 3 {
		t.Fatalf("len = %d, want 3", len(cmds))
	}
	if cmds[0].Text != "start" || cmds[1].Description != "help" {
		t.Fatalf("unexpected %+v", cmds)
	}
	if n := utf8.RuneCountInString(cmds[2].Description); n != 256 {
		t.Fatalf("description runes = %d", n)
	}
	if menuHash(cmds) == menuHash(cmds[:2]) {
		t.Fatal("hash should change with the list")
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New offline: %v", err)
	}
	if a.Supervisor() != nil {
		t.Fatal("supervisor before Start")
	}
}

func TestQueryResponse(t *testing.T) {
	rm := &tele.ReplyMarkup{}
	resp := queryResponse(kit.InlineAnswer{
		Results: []kit.InlineArticle{{
			ID:                 "0",
			Title:              "Portal 2",
			Description:        "199₽ (-80%)",
			ThumbURL:           "https://cdn.example/620.jpg",
			MessageText:        "/trackgame_select 620",
			ReplyMarkupAdapter: rm,
		}},
		CacheTime:  0,
		Personal:   true,
		StartText:  "Игры не найдены",
		StartParam: "start",
	})
	if len(resp.Results) != 1 || !resp.IsPersonal || resp.CacheTime != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	art, ok := resp.Results[0].(*tele.ArticleResult)
	if !ok {
		t.Fatalf("result type %T", resp.Results[0])
	}
	content, ok := art.Content.(*tele.InputTextMessageContent)
	if !ok || content.Text != "/trackgame_select 620" {
		t.Fatalf("content = %+v", art.Content)
	}
	if art.ID != "0" || art.Title != "Portal 2" || art.ReplyMarkup != rm {
		t.Fatalf("article = %+v", art)
	}
	if resp.Button == nil || resp.Button.Start != "start" {
		t.Fatalf("button = %+v", resp.Button)
	}

	if r := queryResponse(kit.InlineAnswer{CacheTime: 90 * time.Second}); r.Button != nil || r.CacheTime != 90 || len(r.Results) != 0 {
		t.Fatalf("empty answer = %+v", r)
	}
}
