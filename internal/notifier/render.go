package notifier

import (
	"fmt"
	"strconv"

	"steamwatch/internal/tracker"
	"steamwatch/pkg/tgui"
)

// CallbackNS prefixes every inline callback the bot understands.
const CallbackNS = "sw"

// UnsubscribeData is the callback data of the unsubscribe button.
func UnsubscribeData(itemID string) string {
	return tgui.Data(CallbackNS, "unsub", itemID)
}

// DropKey identifies one drop for dedup: the same subscriber, item and
// old -> new price transition.
func DropKey(sub int64, p tracker.Payload) string {
	return "drop:" + strconv.FormatInt(sub, 10) + ":" + p.ItemID + ":" +
		strconv.FormatInt(p.OldPrice, 10) + ">" + strconv.FormatInt(p.NewPrice, 10)
}

// RenderDrop builds the alert sent to a subscriber.
func RenderDrop(p tracker.Payload) tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.URLBtn("🛒 Перейти к игре", p.URL)).
		Row(tgui.Btn("❌ Отписаться", UnsubscribeData(p.ItemID)))

	return tgui.New().
		HTML(tgui.Raw("🎮 ") + tgui.B(fmt.Sprintf("%s со скидкой %d%%!", p.Name, p.DiscountPercent))).
		Blank().
		KV("💵", "Новая цена", tgui.FormatRub(p.NewPrice)).
		KV("📉", "Старая цена", tgui.FormatRub(p.OldPrice)).
		KV("💰", "Экономия", tgui.FormatRub(p.Savings)).
		Blank().
		HTML(tgui.Raw("🛒 ") + tgui.Link("Купить в Steam", p.URL)).
		Inline(kb).
		Build()
}
