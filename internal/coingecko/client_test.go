package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/cryptoscan/internal/httpclient"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

func newTestClient(srv *httptest.Server, opts Options) *Client {
	hc := httpclient.NewWithHTTPClient(httpclient.Config{
		Name:    "coingecko",
		BaseURL: srv.URL,
		Retry:   httpclient.RetryPolicy{MaxAttempts: 1},
	}, srv.Client())
	return NewClient(hc, opts)
}

const marketsPage = `[
	{"id":"alpha","symbol":"alp","name":"Alpha","current_price":1.25,"market_cap":500000000,"total_volume":40000000,"price_change_percentage_24h":5.5},
	{"id":"nullcoin","symbol":"nul","name":"Null Coin","current_price":null,"market_cap":1000,"total_volume":10,"price_change_percentage_24h":1},
	{"id":"nochange","symbol":"noc","name":"No Change","current_price":2,"market_cap":1000,"total_volume":10},
	{"id":"zero","symbol":"zer","name":"Zero","current_price":0,"market_cap":1000,"total_volume":10,"price_change_percentage_24h":1},
	{"id":"alpha-wrapped","symbol":"ALP","name":"Alpha Wrapped","current_price":1.2,"market_cap":1000,"total_volume":10,"price_change_percentage_24h":1}
]`

func TestFetchMarkets_MapsAndRejectsMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "market_cap_desc", r.URL.Query().Get("order"))
		_, _ = w.Write([]byte(marketsPage))
	}))
	defer srv.Close()

	c := newTestClient(srv, Options{})
	fixed := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	snaps, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	got := snaps[0]
	assert.Equal(t, "alpha", got.ID)
	assert.Equal(t, "ALP", got.Symbol)
	assert.Equal(t, "Alpha", got.Name)
	assert.Equal(t, 1.25, got.Price)
	assert.Equal(t, 40_000_000.0, got.Volume24h)
	assert.Equal(t, 500_000_000.0, got.MarketCap)
	assert.Equal(t, 5.5, got.PriceChangePct24h)
	assert.Equal(t, fixed, got.FetchedAt)
}

func TestFetchMarkets_Pages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		switch page {
		case "1":
			_, _ = w.Write([]byte(`[
				{"id":"a","symbol":"a","name":"A","current_price":1,"market_cap":1,"total_volume":1,"price_change_percentage_24h":1},
				{"id":"b","symbol":"b","name":"B","current_price":1,"market_cap":1,"total_volume":1,"price_change_percentage_24h":1}]`))
		default:
			_, _ = w.Write([]byte(`[
				{"id":"c","symbol":"c","name":"C","current_price":1,"market_cap":1,"total_volume":1,"price_change_percentage_24h":1}]`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, Options{PerPage: 2, Pages: 5})
	snaps, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
	// A short page ends pagination.
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestFetchMarkets_TransportErrorFailsCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, Options{}).FetchMarkets(context.Background())
	assert.Error(t, err)
}

func TestFetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/alpha/market_chart", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{
			"prices": [[1700000000000, 1.0], [1700003600000, 1.1], [1700007200000, 1.2], [1700010800000, 1.3]],
			"total_volumes": [[1700000000000, 100], [1700003600000, 200], [1700007200000, 300], [1700010800000, 400]]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, Options{})
	snap := models.MarketSnapshot{ID: "alpha", Symbol: "ALP"}
	candles, err := c.FetchHistory(context.Background(), snap, 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, 1.1, candles[0].Close)
	assert.Equal(t, 1.0, candles[0].Open)
	assert.Equal(t, 1.3, candles[2].Close)
	assert.Equal(t, 1.2, candles[2].Open)
	assert.InDelta(t, 1.3*1.001, candles[2].High, 1e-12)
	assert.InDelta(t, 1.3*0.999, candles[2].Low, 1e-12)
	assert.Equal(t, 400.0, candles[2].Volume)
	assert.Equal(t, time.UnixMilli(1700010800000).UTC(), candles[2].OpenTime)
	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime))
}

func TestFetchHistory_MissingVolumes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prices": [[1700000000000, 1.0], [1700003600000, 1.1]]}`))
	}))
	defer srv.Close()

	candles, err := newTestClient(srv, Options{}).FetchHistory(context.Background(), models.MarketSnapshot{ID: "x", Symbol: "X"}, 10)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Zero(t, candles[1].Volume)
}

func TestFetchHistory_RequiresID(t *testing.T) {
	c := NewClient(nil, Options{})
	_, err := c.FetchHistory(context.Background(), models.MarketSnapshot{Symbol: "X"}, 10)
	assert.Error(t, err)
}

func TestAuthHeaders(t *testing.T) {
	assert.Nil(t, AuthHeaders(""))
	assert.Equal(t, map[string]string{"x-cg-demo-api-key": "k"}, AuthHeaders("k"))
}
