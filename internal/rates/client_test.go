package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, priceHandler, fxHandler http.HandlerFunc) *Client {
	t.Helper()
	if priceHandler == nil {
		priceHandler = http.NotFound
	}
	if fxHandler == nil {
		fxHandler = http.NotFound
	}
	priceSrv := httptest.NewServer(priceHandler)
	t.Cleanup(priceSrv.Close)
	fxSrv := httptest.NewServer(fxHandler)
	t.Cleanup(fxSrv.Close)
	return NewClient(priceSrv.URL, fxSrv.URL)
}

func TestSpotUSD(t *testing.T) {
	client := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/simple/price", r.URL.Path)
			assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
			assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
			w.Write([]byte(`{"bitcoin":{"usd":60000}}`))
		},
		nil,
	)

	spot, err := client.SpotUSD(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, spot.Equal(decimal.RequireFromString("60000")), "spot: %s", spot)

	_, err = client.SpotUSD(context.Background(), "DOGE")
	assert.Error(t, err)
}

func TestSpotUSDServerError(t *testing.T) {
	client := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		nil,
	)

	_, err := client.SpotUSD(context.Background(), "BTC")
	assert.Error(t, err)
}

func TestUSDRate(t *testing.T) {
	client := newTestClient(t,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/latest/USD", r.URL.Path)
			w.Write([]byte(`{"rates":{"RUB":90,"EUR":0.92}}`))
		},
	)

	rate, err := client.USDRate(context.Background(), "RUB")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("90")), "rate: %s", rate)

	_, err = client.USDRate(context.Background(), "JPY")
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	client := newTestClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"bitcoin":{"usd":60000}}`))
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"rates":{"RUB":90}}`))
		},
	)

	// 5_400_000 RUB -> 60_000 USD -> 1 BTC.
	got, err := client.Convert(context.Background(), decimal.RequireFromString("5400000"), "RUB", "BTC")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("1")), "converted: %s", got)
}

func TestPrecisionAndFormat(t *testing.T) {
	assert.Equal(t, int32(8), Precision("BTC"))
	assert.Equal(t, int32(8), Precision("ltc"))
	assert.Equal(t, int32(6), Precision("USDT"))

	amount := decimal.RequireFromString("0.5")
	assert.Equal(t, "0.50000000", Format(amount, "BTC"))
	assert.Equal(t, "0.500000", Format(amount, "USDT"))
}
