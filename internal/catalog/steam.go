package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	logx "steamwatch/pkg/logx"
)

const (
	DefaultBaseURL      = "https://store.steampowered.com"
	DefaultLocale       = "ru"
	DefaultTimeout      = 10 * time.Second
	DefaultBreakerDelay = 30 * time.Second

	maxBodyBytes = 4 << 20
)

type Options struct {
	BaseURL      string
	Locale       string
	Country      string
	Timeout      time.Duration
	BreakerDelay time.Duration
	HTTP         *http.Client // optional; Timeout is ignored when set
	Log          logx.Logger
}

// HTTPClient talks to the Steam storefront API. It never retries; a circuit
// breaker fails fast while the store keeps erroring.
type HTTPClient struct {
	base     string
	language string
	locale   string
	country  string

	http *http.Client
	exec failsafe.Executor[*http.Response]
	log  logx.Logger
}

var _ Client = (*HTTPClient)(nil)

var languages = map[string]struct{ lang, cc string }{
	"ru": {"russian", "RU"},
	"en": {"english", "US"},
	"uk": {"ukrainian", "UA"},
	"de": {"german", "DE"},
	"pl": {"polish", "PL"},
}

func New(opts Options) *HTTPClient {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	locale := strings.ToLower(strings.TrimSpace(opts.Locale))
	if locale == "" {
		locale = DefaultLocale
	}
	lang, cc := locale, strings.ToUpper(locale)
	if l, ok := languages[locale]; ok {
		lang, cc = l.lang, l.cc
	}
	if c := strings.TrimSpace(opts.Country); c != "" {
		cc = strings.ToUpper(c)
	}

	hc := opts.HTTP
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	delay := opts.BreakerDelay
	if delay <= 0 {
		delay = DefaultBreakerDelay
	}

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(delay).
		Build()

	return &HTTPClient{
		base:     base,
		language: lang,
		locale:   locale,
		country:  cc,
		http:     hc,
		exec:     failsafe.With[*http.Response](breaker),
		log:      opts.Log,
	}
}

type appDetailsEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type appData struct {
	Name          string `json:"name"`
	IsFree        bool   `json:"is_free"`
	PriceOverview *struct {
		Currency        string `json:"currency"`
		Initial         int64  `json:"initial"`
		Final           int64  `json:"final"`
		DiscountPercent int    `json:"discount_percent"`
	} `json:"price_overview"`
	ReleaseDate *struct {
		ComingSoon bool   `json:"coming_soon"`
		Date       string `json:"date"`
	} `json:"release_date"`
	Metacritic *struct {
		Score int `json:"score"`
	} `json:"metacritic"`
	Genres []struct {
		Description string `json:"description"`
	} `json:"genres"`
	Developers       []string `json:"developers"`
	ShortDescription string   `json:"short_description"`
	HeaderImage      string   `json:"header_image"`
	Screenshots      []struct {
		PathThumbnail string `json:"path_thumbnail"`
	} `json:"screenshots"`
}

// FetchDetails loads one item from /api/appdetails.
func (c *HTTPClient) FetchDetails(ctx context.Context, itemID string) (Item, error) {
	const op = "appdetails"
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return Item{}, errorf(KindNotFound, op, itemID, "empty item id")
	}

	q := url.Values{}
	q.Set("appids", itemID)
	q.Set("l", c.language)
	q.Set("cc", c.country)

	var env map[string]appDetailsEnvelope
	if err := c.getJSON(ctx, op, itemID, "/api/appdetails", q, &env); err != nil {
		return Item{}, err
	}
	e, ok := env[itemID]
	if !ok || !e.Success {
		return Item{}, newError(KindNotFound, op, itemID, nil)
	}

	var d appData
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &d) != nil {
		return Item{}, errorf(KindMalformed, op, itemID, "data missing or not an object")
	}
	if strings.TrimSpace(d.Name) == "" {
		return Item{}, errorf(KindMalformed, op, itemID, "name missing")
	}
	return d.item(itemID), nil
}

func (d appData) item(id string) Item {
	it := Item{
		ID:               id,
		Name:             strings.TrimSpace(d.Name),
		IsFree:           d.IsFree,
		Developers:       d.Developers,
		ShortDescription: strings.TrimSpace(d.ShortDescription),
		HeaderImage:      d.HeaderImage,
	}
	if p := d.PriceOverview; p != nil {
		final, initial := p.Final, p.Initial
		it.Price = &final
		it.InitialPrice = &initial
		it.DiscountPercent = p.DiscountPercent
		it.Currency = p.Currency
	}
	if r := d.ReleaseDate; r != nil {
		it.ReleaseDate = r.Date
		it.ComingSoon = r.ComingSoon
	}
	if d.Metacritic != nil {
		it.Metacritic = d.Metacritic.Score
	}
	for _, g := range d.Genres {
		if g.Description != "" {
			it.Genres = append(it.Genres, g.Description)
		}
	}
	if len(d.Screenshots) > 0 {
		it.Screenshot = d.Screenshots[0].PathThumbnail
	}
	return it
}

type featuredSection struct {
	Items []struct {
		ID              int64  `json:"id"`
		Name            string `json:"name"`
		DiscountPercent int    `json:"discount_percent"`
		OriginalPrice   *int64 `json:"original_price"`
		FinalPrice      *int64 `json:"final_price"`
		Metacritic      int    `json:"metacritic_score"`
		HeaderImage     string `json:"header_image"`
	} `json:"items"`
}

var featuredSections = []string{
	SectionSpecials, SectionTopSellers, SectionNewReleases, SectionComingSoon,
	SectionFeaturedWin, SectionFeaturedMac, SectionFeaturedLinux,
}

// Featured loads /api/featuredcategories. A section with an unexpected shape
// is skipped rather than failing the whole call.
func (c *HTTPClient) Featured(ctx context.Context) (Featured, error) {
	const op = "featuredcategories"
	q := url.Values{}
	q.Set("cc", c.country)
	q.Set("l", c.language)

	var raw map[string]json.RawMessage
	if err := c.getJSON(ctx, op, "", "/api/featuredcategories", q, &raw); err != nil {
		return nil, err
	}

	out := Featured{}
	for _, name := range featuredSections {
		b, ok := raw[name]
		if !ok {
			continue
		}
		var sec featuredSection
		if err := json.Unmarshal(b, &sec); err != nil {
			c.log.Debug("featured section skipped", logx.String("section", name), logx.Err(err))
			continue
		}
		items := make([]Summary, 0, len(sec.Items))
		for _, it := range sec.Items {
			if it.ID == 0 || it.Name == "" {
				continue
			}
			s := Summary{
				ID:              strconv.FormatInt(it.ID, 10),
				Name:            it.Name,
				DiscountPercent: it.DiscountPercent,
				Metacritic:      it.Metacritic,
				Image:           it.HeaderImage,
			}
			if it.FinalPrice != nil {
				s.FinalPrice = *it.FinalPrice
				s.HasPrice = true
			}
			if it.OriginalPrice != nil {
				s.OriginalPrice = *it.OriginalPrice
			} else {
				s.OriginalPrice = s.FinalPrice
			}
			items = append(items, s)
		}
		if len(items) > 0 {
			out[name] = items
		}
	}
	return out, nil
}

type searchResponse struct {
	Total int `json:"total"`
	Items []struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Price *struct {
			Initial         int64 `json:"initial"`
			Final           int64 `json:"final"`
			DiscountPercent int   `json:"discount_percent"`
		} `json:"price"`
		TinyImage string `json:"tiny_image"`
		Metascore string `json:"metascore"`
	} `json:"items"`
}

// Search queries /api/storesearch. limit <= 0 means 10.
func (c *HTTPClient) Search(ctx context.Context, term string, limit int) ([]Summary, error) {
	const op = "storesearch"
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("term", term)
	q.Set("cc", c.country)
	q.Set("l", c.locale)
	q.Set("limit", strconv.Itoa(limit))

	var res searchResponse
	if err := c.getJSON(ctx, op, "", "/api/storesearch", q, &res); err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(res.Items))
	for _, it := range res.Items {
		if it.ID == 0 {
			continue
		}
		s := Summary{ID: strconv.FormatInt(it.ID, 10), Name: it.Name, Image: it.TinyImage}
		if it.Price != nil {
			s.HasPrice = true
			s.FinalPrice = it.Price.Final
			s.OriginalPrice = it.Price.Initial
			s.DiscountPercent = it.Price.DiscountPercent
			if s.DiscountPercent == 0 && s.OriginalPrice > s.FinalPrice && s.OriginalPrice > 0 {
				s.DiscountPercent = int((s.OriginalPrice - s.FinalPrice) * 100 / s.OriginalPrice)
			}
		}
		s.Metacritic, _ = strconv.Atoi(it.Metascore)
		out = append(out, s)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, op, itemID, path string, q url.Values, v any) error {
	u := c.base + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return newError(KindUnavailable, op, itemID, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.exec.WithContext(ctx).Get(func() (*http.Response, error) {
		return c.http.Do(req)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return errorf(KindUnavailable, op, itemID, "circuit open: %w", err)
		}
		return newError(KindUnavailable, op, itemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return errorf(KindUnavailable, op, itemID, "http status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return newError(KindUnavailable, op, itemID, fmt.Errorf("read body: %w", err))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return newError(KindMalformed, op, itemID, err)
	}
	c.log.Trace("catalog request",
		logx.String("op", op),
		logx.String("item", itemID),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}
