package quoteapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlasovmx/stockfolio/config"
	"github.com/vlasovmx/stockfolio/internal/externalapi"
)

func newTestApi(serverURL string) *QuoteApi {
	cfg := &config.Config{}
	cfg.API.Timeout = 5 * time.Second
	cfg.API.QuoteApi.Url = serverURL
	cfg.API.QuoteApi.Key = "test-key"
	return New(cfg)
}

func TestGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stable/stock/AAPL/quote", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"AAPL","companyName":"Apple Inc","latestPrice":150.25}`))
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	quote, err := api.GetQuote(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, "Apple Inc", quote.Name)
	assert.Equal(t, "150.25", quote.Price.String())
}

func TestGetQuote_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	_, err := api.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, externalapi.ErrNotFound)
}

func TestGetQuote_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	_, err := api.GetQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, externalapi.ErrNotFound)
}

func TestGetQuote_ZeroPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"AAPL","companyName":"Apple Inc","latestPrice":0}`))
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	_, err := api.GetQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, externalapi.ErrNotFound)
}

func TestGetQuote_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	api := newTestApi(server.URL)

	_, err := api.GetQuote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.NotErrorIs(t, err, externalapi.ErrNotFound)
}
