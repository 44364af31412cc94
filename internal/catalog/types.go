package catalog

import "context"

// Item is the catalog view of one store entry. Prices are in minor currency
// units (kopecks for RUB).
type Item struct {
	ID               string
	Name             string
	Price            *int64 // nil when the item has no price overview (free)
	InitialPrice     *int64
	DiscountPercent  int
	Currency         string
	IsFree           bool
	ReleaseDate      string
	ComingSoon       bool
	Metacritic       int
	Genres           []string
	Developers       []string
	ShortDescription string
	HeaderImage      string
	Screenshot       string
}

// FinalPrice is the current price, 0 for free or unpriced items.
func (it Item) FinalPrice() int64 {
	if it.Price == nil {
		return 0
	}
	return *it.Price
}

// Summary is a list entry from featured sections or search results.
type Summary struct {
	ID              string
	Name            string
	FinalPrice      int64
	OriginalPrice   int64
	DiscountPercent int
	Metacritic      int
	Image           string
	HasPrice        bool
}

// Section names in the featured categories response.
const (
	SectionSpecials      = "specials"
	SectionTopSellers    = "top_sellers"
	SectionNewReleases   = "new_releases"
	SectionComingSoon    = "coming_soon"
	SectionFeaturedWin   = "featured_win"
	SectionFeaturedMac   = "featured_mac"
	SectionFeaturedLinux = "featured_linux"
)

// Featured maps section name to its items. Unknown or empty sections are absent.
type Featured map[string][]Summary

// Collect concatenates the named sections in order, skipping missing ones.
func (f Featured) Collect(sections ...string) []Summary {
	var out []Summary
	for _, s := range sections {
		out = append(out, f[s]...)
	}
	return out
}

// Fetcher is the single call the price engine depends on.
type Fetcher interface {
	FetchDetails(ctx context.Context, itemID string) (Item, error)
}

// Client adds the browsing calls used by the chat UI.
type Client interface {
	Fetcher
	Featured(ctx context.Context) (Featured, error)
	Search(ctx context.Context, term string, limit int) ([]Summary, error)
}

// StoreURL is the public store page for an item.
func StoreURL(itemID string) string {
	return "https://store.steampowered.com/app/" + itemID
}
