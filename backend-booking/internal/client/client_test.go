package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/httpclient"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if body == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIdentityClient_GetWallet(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/internal/users/7/wallet": `{"walletAddress":"0xAbCdEf0000000000000000000000000000000001","exists":true}`,
		"/internal/users/9/wallet": "",
	})
	c := NewHTTPIdentityClient(httpclient.New(&httpclient.Config{BaseURL: srv.URL}))

	w, err := c.GetWallet(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, w.Exists)
	assert.Equal(t, "0xAbCdEf0000000000000000000000000000000001", w.WalletAddress)

	w, err = c.GetWallet(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, w.Exists)

	_, err = c.GetWallet(context.Background(), 9)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestListingClient_GetPricing(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/internal/properties/1": `{"pricePerNight":"0.25","currency":"ETH"}`,
		"/internal/properties/2": `{"pricePerNight":100,"currency":"ETH"}`,
	})
	c := NewHTTPListingClient(httpclient.New(&httpclient.Config{BaseURL: srv.URL}))

	p, err := c.GetPricing(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.25").Equal(p.PricePerNight))
	assert.Equal(t, "ETH", p.Currency)

	p, err = c.GetPricing(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(p.PricePerNight))

	_, err = c.GetPricing(context.Background(), 3)
	assert.ErrorIs(t, err, domain.ErrPropertyNotFound)
}
