package tgui

import "github.com/shopspring/decimal"

// FormatRub renders a price in kopecks as rubles, e.g. 49950 -> "499.5₽".
func FormatRub(minor int64) string {
	return decimal.New(minor, -2).String() + "₽"
}

// PriceOrFree renders FormatRub, or "Бесплатно" when the price is zero or unknown.
func PriceOrFree(minor int64) string {
	if minor <= 0 {
		return "Бесплатно"
	}
	return FormatRub(minor)
}
