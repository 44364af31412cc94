package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, Locale: "ru"})
}

func TestFetchDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appdetails", r.URL.Path)
		assert.Equal(t, "620", r.URL.Query().Get("appids"))
		assert.Equal(t, "russian", r.URL.Query().Get("l"))
		assert.Equal(t, "RU", r.URL.Query().Get("cc"))
		_, _ = w.Write([]byte(`{"620":{"success":true,"data":{
			"name":"Portal 2",
			"price_overview":{"currency":"RUB","initial":39900,"final":9900,"discount_percent":75},
			"release_date":{"coming_soon":false,"date":"18 апр. 2011"},
			"metacritic":{"score":95},
			"genres":[{"description":"Экшены"},{"description":"Приключения"}],
			"developers":["Valve"],
			"short_description":"Головоломка",
			"screenshots":[{"path_thumbnail":"https://cdn/shot.jpg"}]
		}}}`))
	})

	it, err := c.FetchDetails(context.Background(), "620")
	require.NoError(t, err)
	assert.Equal(t, "Portal 2", it.Name)
	assert.Equal(t, int64(9900), it.FinalPrice())
	require.NotNil(t, it.InitialPrice)
	assert.Equal(t, int64(39900), *it.InitialPrice)
	assert.Equal(t, 75, it.DiscountPercent)
	assert.Equal(t, 95, it.Metacritic)
	assert.Equal(t, []string{"Экшены", "Приключения"}, it.Genres)
	assert.Equal(t, "https://cdn/shot.jpg", it.Screenshot)
}

func TestFetchDetailsFreeItemHasZeroPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"570":{"success":true,"data":{"name":"Dota 2","is_free":true}}}`))
	})
	it, err := c.FetchDetails(context.Background(), "570")
	require.NoError(t, err)
	assert.Nil(t, it.Price)
	assert.Equal(t, int64(0), it.FinalPrice())
	assert.True(t, it.IsFree)
}

func TestFetchDetailsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"success false", 200, `{"1":{"success":false}}`, ErrNotFound},
		{"missing entry", 200, `{"2":{"success":true,"data":{"name":"x"}}}`, ErrNotFound},
		{"server error", 502, `bad gateway`, ErrUnavailable},
		{"rate limited", 429, ``, ErrUnavailable},
		{"not json", 200, `<html>`, ErrMalformed},
		{"data empty array", 200, `{"1":{"success":true,"data":[]}}`, ErrMalformed},
		{"name missing", 200, `{"1":{"success":true,"data":{"name":"  "}}}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.FetchDetails(context.Background(), "1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)

			var ce *Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "1", ce.ItemID)
		})
	}
}

func TestFetchDetailsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url})
	_, err := c.FetchDetails(context.Background(), "10")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, Retryable(err))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})
	for i := 0; i < 20; i++ {
		_, err := c.FetchDetails(context.Background(), "1")
		require.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Less(t, calls, 20, "breaker should short-circuit some calls")
}

func TestFeatured(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/featuredcategories", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"specials":{"id":"cat_specials","items":[
				{"id":10,"name":"Half-Life","discount_percent":80,"original_price":29900,"final_price":5980},
				{"id":0,"name":"bad"}
			]},
			"top_sellers":{"items":[{"id":570,"name":"Dota 2","final_price":0,"original_price":null}]},
			"coming_soon":"unexpected",
			"status":1
		}`))
	})
	f, err := c.Featured(context.Background())
	require.NoError(t, err)
	require.Len(t, f[SectionSpecials], 1)
	assert.Equal(t, "10", f[SectionSpecials][0].ID)
	assert.Equal(t, int64(29900), f[SectionSpecials][0].OriginalPrice)
	assert.Equal(t, int64(0), f[SectionTopSellers][0].FinalPrice)
	_, ok := f[SectionComingSoon]
	assert.False(t, ok)
	assert.Len(t, f.Collect(SectionSpecials, SectionTopSellers, SectionNewReleases), 2)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/storesearch", r.URL.Path)
		assert.Equal(t, "portal", r.URL.Query().Get("term"))
		assert.Equal(t, "ru", r.URL.Query().Get("l"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"total":2,"items":[
			{"id":620,"name":"Portal 2","price":{"initial":40000,"final":10000},"tiny_image":"t.jpg","metascore":"95"},
			{"id":400,"name":"Portal"}
		]}`))
	})
	res, err := c.Search(context.Background(), " portal ", 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 75, res[0].DiscountPercent)
	assert.Equal(t, 95, res[0].Metacritic)
	assert.False(t, res[1].HasPrice)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(newError(KindNotFound, "x", "1", nil)))
	assert.True(t, Retryable(newError(KindMalformed, "x", "1", nil)))
	assert.Equal(t, KindUnavailable, KindOf(errors.New("boom")))
}
