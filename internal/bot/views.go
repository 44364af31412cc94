package bot

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"steamwatch/internal/catalog"
	"steamwatch/internal/notifier"
	kit "steamwatch/internal/transport"
	"steamwatch/internal/watch"
	"steamwatch/pkg/tgui"
)

// Callback actions.
const (
	actMenu   = "menu"
	actSubs   = "subs"
	actDeals  = "deals"
	actFree   = "free"
	actRecs   = "recs"
	actStats  = "stats"
	actHelp   = "help"
	actInfo   = "info"
	actSub    = "sub"
	actUnsub  = "unsub"
	actSelect = "select"
)

const (
	listLimit     = 5
	recsCollect   = 10
	subsPageSize  = 8
	btnNameRunes  = 15
	searchLimit   = 10
	inlineMinLen  = 3
	fallbackTake  = 2
	textBack      = "◀️ Назад"
	textBackSubs  = "◀️ Назад к подпискам"
	textNoRating  = "Н/А"
	textNoRelease = "Неизвестно"
)

const (
	textMenu             = "<b>Главное меню</b>\n\nВыберите действие с помощью кнопок ниже:"
	textNoSubs           = "У вас нет активных подписок. Используйте поиск, чтобы добавить игры."
	textItemNotFound     = "Не удалось загрузить информацию об игре."
	textItemError        = "Произошла ошибка при загрузке информации об игре."
	textNoDeals          = "В настоящее время нет специальных предложений."
	textDealsError       = "Произошла ошибка при загрузке списка скидок."
	textNoFree           = "В настоящее время нет бесплатных игр."
	textFreeError        = "Произошла ошибка при загрузке списка бесплатных игр."
	textNoRecs           = "Не удалось загрузить рекомендации."
	textRecsError        = "Произошла ошибка при загрузке рекомендаций."
	textSubscribeFailed  = "Произошла ошибка при добавлении игры. Попробуйте позже."
	textUnsubscribed     = "Игра удалена из отслеживаемых."
	textSearchPrompt     = "Введите название игры после команды /trackgame"
	textSearchFailed     = "Произошла ошибка при поиске"
	textSearchEmpty      = "Игры не найдены"
	textSearchShort      = "Введите минимум 3 символа"
	textSearchButton     = "🔍 Найти игру"
	textCheckStarted     = "🔄 Проверка цен запущена."
	textCheckRunning     = "⏳ Проверка цен уже выполняется."
	textCheckUnavailable = "Планировщик проверок недоступен."
)

// Sections scanned by the browsing screens, in display priority.
var (
	freeSections = []string{
		catalog.SectionFeaturedWin, catalog.SectionFeaturedMac, catalog.SectionFeaturedLinux,
		catalog.SectionSpecials, catalog.SectionComingSoon, catalog.SectionNewReleases, catalog.SectionTopSellers,
	}
	recSections = []string{
		catalog.SectionFeaturedWin, catalog.SectionFeaturedMac, catalog.SectionFeaturedLinux,
		catalog.SectionSpecials, catalog.SectionTopSellers, catalog.SectionNewReleases,
	}
)

func cbData(action, payload string) string {
	return tgui.Data(notifier.CallbackNS, action, payload)
}

func backBtn(action string) tele.Btn { return tgui.Btn(textBack, cbData(action, "")) }

// textView is a plain message with a single back button.
func textView(text, back string) tgui.Message {
	return tgui.New().Line(text).Inline(tgui.NewInline().Row(backBtn(back))).Build()
}

func mainMenuKeyboard() *tgui.Inline {
	return tgui.Grid2([]tele.Btn{
		tgui.QueryChatBtn("🔍 Поиск игры", ""),
		tgui.Btn("🎮 Мои подписки", cbData(actSubs, "")),
		tgui.Btn("💰 Топ скидок", cbData(actDeals, "")),
		tgui.Btn("🆓 Бесплатные игры", cbData(actFree, "")),
		tgui.Btn("🎯 Рекомендации", cbData(actRecs, "")),
		tgui.Btn("📊 Статистика", cbData(actStats, "")),
	}, tgui.Btn("❓ Помощь", cbData(actHelp, "")))
}

func welcomeView() tgui.Message {
	return tgui.New().
		Title("🎮", "Добро пожаловать в Steam Price Tracker Bot!").
		Blank().
		Line("С помощью этого бота вы можете:").
		Bullets(
			"Отслеживать изменения цен на игры в Steam",
			"Получать уведомления о скидках",
			"Искать информацию об играх",
			"Находить лучшие предложения",
		).
		Blank().
		HTML(tgui.B("Используйте кнопки ниже для навигации:")).
		Inline(mainMenuKeyboard()).
		Build()
}

func menuView() tgui.Message {
	return tgui.New().HTML(tgui.Raw(textMenu)).Inline(mainMenuKeyboard()).Build()
}

type subRow struct {
	ItemID string
	Name   string
}

func subscriptionsView(rows []subRow, page int) tgui.Message {
	if len(rows) == 0 {
		kb := tgui.NewInline().
			Row(tgui.QueryChatBtn("🔍 Поиск игр", "")).
			Row(backBtn(actMenu))
		return tgui.New().Line(textNoSubs).Inline(kb).Build()
	}

	p := tgui.Paginate(rows, page, subsPageSize)
	b := tgui.New().Title("🎮", "Ваши подписки:").Blank()
	kb := tgui.NewInline()
	for _, r := range p.Items {
		b.Line("▪️ " + r.Name)
		kb.Row(tgui.Btn(r.Name, cbData(actInfo, r.ItemID)))
	}
	if p.HasPrev || p.HasNext {
		b.Blank().Line(p.Label())
		var nav []tele.Btn
		if p.HasPrev {
			nav = append(nav, tgui.Btn("⬅️", cbData(actSubs, strconv.Itoa(p.Number-1))))
		}
		if p.HasNext {
			nav = append(nav, tgui.Btn("➡️", cbData(actSubs, strconv.Itoa(p.Number+1))))
		}
		kb.Row(nav...)
	}
	kb.Row(backBtn(actMenu))
	return b.Inline(kb).Build()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func rating(score int) string {
	if score <= 0 {
		return textNoRating
	}
	return strconv.Itoa(score)
}

func itemView(it catalog.Item, subscribed bool) tgui.Message {
	b := tgui.New().
		Title("🎮", it.Name).
		Blank().
		KV("📅", "Дата выхода", orDefault(it.ReleaseDate, textNoRelease)).
		KV("⭐", "Рейтинг", rating(it.Metacritic)).
		KV("💾", "Жанры", orDefault(strings.Join(it.Genres, ", "), "Не указаны")).
		KV("👥", "Разработчик", orDefault(strings.Join(it.Developers, ", "), "Не указан")).
		Blank()
	if it.Price != nil {
		b.KV("💰", "Цена", tgui.FormatRub(*it.Price))
		b.KV("📉", "Скидка", fmt.Sprintf("%d%%", it.DiscountPercent))
	} else {
		b.KV("💰", "Цена", "Бесплатно")
	}
	if d := strings.TrimSpace(it.ShortDescription); d != "" {
		b.Blank().Line(d)
	}

	kb := tgui.NewInline()
	if subscribed {
		kb.Row(tgui.Btn("❌ Отписаться", cbData(actUnsub, it.ID)))
	} else {
		kb.Row(tgui.Btn("✅ Подписаться", cbData(actSub, it.ID)))
	}
	kb.Row(tgui.URLBtn("🔼 Открыть в Steam", catalog.StoreURL(it.ID)))
	kb.Row(tgui.Btn(textBackSubs, cbData(actSubs, "")))
	return b.Photo(it.Screenshot).Inline(kb).Build()
}

func dealsView(specials []catalog.Summary) tgui.Message {
	if len(specials) == 0 {
		return textView(textNoDeals, actMenu)
	}
	b := tgui.New().Title("🔥", "Топ скидок в Steam:").Blank()
	kb := tgui.NewInline()
	for _, s := range specials[:min(listLimit, len(specials))] {
		b.HTML(tgui.Raw("🎮 ") + tgui.B(s.Name))
		b.HTML(tgui.Raw("💰 ") + tgui.S(tgui.FormatRub(s.OriginalPrice)) +
			tgui.Esc(fmt.Sprintf(" %s (-%d%%)", tgui.FormatRub(s.FinalPrice), s.DiscountPercent)))
		b.Blank()
		kb.Row(tgui.Btn(fmt.Sprintf("✅ %s (%d%%)", s.Name, s.DiscountPercent), cbData(actInfo, s.ID)))
	}
	kb.Row(backBtn(actMenu))
	return b.Inline(kb).Build()
}

// pickFree returns up to listLimit free items. When none are free it falls
// back to the first few items of each section and reports fallback=true.
func pickFree(f catalog.Featured) (items []catalog.Summary, fallback bool) {
	seen := map[string]bool{}
	for _, s := range f.Collect(freeSections...) {
		if s.FinalPrice != 0 || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		items = append(items, s)
		if len(items) == listLimit {
			return items, false
		}
	}
	if len(items) > 0 {
		return items, false
	}
	for _, sec := range freeSections {
		for _, s := range f[sec][:min(fallbackTake, len(f[sec]))] {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			items = append(items, s)
			if len(items) == listLimit {
				return items, true
			}
		}
	}
	return items, true
}

func freeView(items []catalog.Summary, fallback bool) tgui.Message {
	if len(items) == 0 {
		return textView(textNoFree, actMenu)
	}
	b := tgui.New()
	if fallback {
		b.Title("🎮", "Популярные игры:")
	} else {
		b.Title("🆓", "Бесплатные игры в Steam:")
	}
	b.Blank()
	kb := tgui.NewInline()
	for _, s := range items {
		b.HTML(tgui.Raw("🎮 ") + tgui.B(s.Name))
		if fallback {
			b.Line("💰 " + tgui.PriceOrFree(s.FinalPrice))
		}
		b.Line("⭐ Рейтинг: " + rating(s.Metacritic))
		b.Blank()
		kb.Row(tgui.Btn("✅ "+tgui.TruncRunes(s.Name, btnNameRunes), cbData(actInfo, s.ID)))
	}
	kb.Row(backBtn(actMenu))
	return b.Inline(kb).Build()
}

// pickRecs gathers whole sections until at least recsCollect items are
// collected and returns the first listLimit.
func pickRecs(f catalog.Featured) []catalog.Summary {
	var out []catalog.Summary
	for _, sec := range recSections {
		out = append(out, f[sec]...)
		if len(out) >= recsCollect {
			break
		}
	}
	return out[:min(listLimit, len(out))]
}

func recsView(items []catalog.Summary) tgui.Message {
	if len(items) == 0 {
		return textView(textNoRecs, actMenu)
	}
	b := tgui.New().Title("🎯", "Рекомендуемые игры:").Blank()
	kb := tgui.NewInline()
	for _, s := range items {
		price := "💰 " + tgui.PriceOrFree(s.FinalPrice)
		if s.DiscountPercent > 0 {
			price += fmt.Sprintf(" (скидка %d%%)", s.DiscountPercent)
		}
		b.HTML(tgui.Raw("🎮 ") + tgui.B(s.Name))
		b.Line(price)
		b.Line("⭐ Рейтинг: " + rating(s.Metacritic))
		b.Blank()
		kb.Row(tgui.Btn("ℹ️ "+tgui.TruncRunes(s.Name, btnNameRunes), cbData(actInfo, s.ID)))
	}
	kb.Row(backBtn(actMenu))
	return b.Inline(kb).Build()
}

type statsInfo struct {
	watch.Stats
	LastSweep string // empty when no sweep has run
	NextSweep string
}

func averagePerUser(st watch.Stats) string {
	if st.Subscribers == 0 {
		return "0"
	}
	return strconv.FormatFloat(float64(st.Subscriptions)/float64(st.Subscribers), 'f', 1, 64)
}

func statsView(s statsInfo) tgui.Message {
	b := tgui.New().Title("📊", "Статистика бота:").Blank().
		Line("👥 Всего пользователей: " + strconv.Itoa(s.Subscribers)).
		Line("🎮 Всего подписок: " + strconv.Itoa(s.Subscriptions)).
		Line("📈 Среднее количество подписок на пользователя: " + averagePerUser(s.Stats))
	if s.LastSweep != "" || s.NextSweep != "" {
		b.Blank()
		if s.LastSweep != "" {
			b.Line("🕒 Последняя проверка: " + s.LastSweep)
		}
		if s.NextSweep != "" {
			b.Line("⏰ Следующая проверка: " + s.NextSweep)
		}
	}
	return b.Inline(tgui.NewInline().Row(backBtn(actMenu))).Build()
}

func helpView() tgui.Message {
	feature := func(emoji, name, desc string) tgui.H {
		return tgui.Raw("• "+emoji+" ") + tgui.B(name) + tgui.Esc(" - "+desc)
	}
	return tgui.New().
		Title("❓", "Помощь по использованию бота").
		Blank().
		HTML(tgui.B("Основные возможности:")).
		HTML(feature("🔍", "Поиск игры", "найдите игру для отслеживания")).
		HTML(feature("🎮", "Мои подписки", "просмотр отслеживаемых игр")).
		HTML(feature("💰", "Топ скидок", "лучшие предложения Steam")).
		HTML(feature("🆓", "Бесплатные игры", "текущие бесплатные предложения")).
		Blank().
		HTML(tgui.B("Как использовать:")).
		Line("1. Найдите игру командой /trackgame [название]").
		Line("2. Нажмите на игру в результатах поиска").
		Line("3. Нажмите \"Подписаться\" для отслеживания цены").
		Line("4. Получайте уведомления о снижении цены!").
		Blank().
		HTML(tgui.B("Команды:")).
		Line("/start - Главное меню").
		Line("/trackgame [название] - Поиск игры").
		Line("/mysubscriptions - Мои подписки").
		Inline(tgui.NewInline().Row(backBtn(actMenu))).
		Build()
}

func summaryPrice(s catalog.Summary) string {
	price := "Бесплатно"
	if s.HasPrice {
		price = tgui.FormatRub(s.FinalPrice)
	}
	if s.DiscountPercent > 0 {
		price += fmt.Sprintf(" (-%d%%)", s.DiscountPercent)
	}
	return price
}

func searchResultLabel(s catalog.Summary) string {
	return tgui.TruncRunes(s.Name, 40) + " · " + summaryPrice(s)
}

// inlineResults turns search hits into articles; picking one posts
// /trackgame_select <id> into the chat, which subscribes.
func inlineResults(results []catalog.Summary) []kit.InlineArticle {
	out := make([]kit.InlineArticle, 0, len(results))
	for i, s := range results {
		out = append(out, kit.InlineArticle{
			ID:          strconv.Itoa(i),
			Title:       s.Name,
			Description: summaryPrice(s),
			ThumbURL:    s.Image,
			MessageText: "/trackgame_select " + s.ID,
		})
	}
	return out
}

func searchView(query string, results []catalog.Summary) tgui.Message {
	if len(results) == 0 {
		return textView(textSearchEmpty, actMenu)
	}
	b := tgui.New().HTML(tgui.Raw("🔍 ") + tgui.B("Результаты поиска: ") + tgui.Esc(query)).
		Blank().
		Line("Выберите игру, чтобы подписаться:")
	kb := tgui.NewInline()
	for _, s := range results {
		kb.Row(tgui.Btn(searchResultLabel(s), cbData(actSelect, s.ID)))
	}
	kb.Row(tgui.QueryChatBtn(textSearchButton, query))
	kb.Row(backBtn(actMenu))
	return b.Inline(kb).Build()
}
