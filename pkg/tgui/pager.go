package tgui

import "fmt"

// Page is one window of a paginated list. Number is 0-based.
type Page[T any] struct {
	Items   []T
	Number  int
	Size    int
	Total   int
	HasPrev bool
	HasNext bool
}

// Paginate returns the requested page, clamping page into range.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = 10
	}
	total := len(items)
	pages := max((total+size-1)/size, 1)
	page = min(max(page, 0), pages-1)
	start := min(page*size, total)
	end := min(start+size, total)
	return Page[T]{
		Items:   items[start:end],
		Number:  page,
		Size:    size,
		Total:   total,
		HasPrev: page > 0,
		HasNext: end < total,
	}
}

// Label renders a compact page label, e.g. "Страница 2/3 • 11–20 из 25".
func (p Page[T]) Label() string {
	if p.Total <= 0 {
		return "Страница 1/1"
	}
	pages := max((p.Total+p.Size-1)/p.Size, 1)
	from := p.Number*p.Size + 1
	to := min((p.Number+1)*p.Size, p.Total)
	return fmt.Sprintf("Страница %d/%d • %d–%d из %d", p.Number+1, pages, from, to, p.Total)
}
