package rates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Client fetches crypto spot prices and fiat FX rates. Every payment flow
// re-fetches; there is no cache, so a failure here must surface as a soft
// user-facing error, never crash the flow.
type Client struct {
	client       *http.Client
	priceBaseURL string
	fxBaseURL    string
}

func NewClient(priceBaseURL, fxBaseURL string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		priceBaseURL: priceBaseURL,
		fxBaseURL:    fxBaseURL,
	}
}

// coin ids of the tickers the storefront accepts
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"LTC":  "litecoin",
	"ETH":  "ethereum",
	"USDT": "tether",
}

// SpotUSD returns the USD price of one unit of the given crypto ticker.
func (c *Client) SpotUSD(ctx context.Context, ticker string) (decimal.Decimal, error) {
	coin, ok := coinIDs[strings.ToUpper(ticker)]
	if !ok {
		return decimal.Zero, errors.Errorf("unsupported crypto currency: %s", ticker)
	}

	u, err := url.JoinPath(c.priceBaseURL, "simple", "price")
	if err != nil {
		return decimal.Zero, err
	}
	u += "?ids=" + coin + "&vs_currencies=usd"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "price api request failed")
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errors.Errorf("price api returned status %d", resp.StatusCode)
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to decode price api response")
	}

	price, ok := body[coin]["usd"]
	if !ok || price.IsZero() {
		return decimal.Zero, errors.Errorf("price api returned no rate for %s", coin)
	}
	return price, nil
}

// USDRate returns how many units of the given fiat currency one USD buys.
func (c *Client) USDRate(ctx context.Context, fiat string) (decimal.Decimal, error) {
	u, err := url.JoinPath(c.fxBaseURL, "latest", "USD")
	if err != nil {
		return decimal.Zero, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "fx api request failed")
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errors.Errorf("fx api returned status %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to decode fx api response")
	}

	rate, ok := body.Rates[strings.ToUpper(fiat)]
	if !ok || rate.IsZero() {
		return decimal.Zero, errors.Errorf("fx api returned no rate for %s", fiat)
	}
	return rate, nil
}

// Convert converts a fiat amount into the given crypto currency.
func (c *Client) Convert(ctx context.Context, fiatAmount decimal.Decimal, fiat, ticker string) (decimal.Decimal, error) {
	spot, err := c.SpotUSD(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	fx, err := c.USDRate(ctx, fiat)
	if err != nil {
		return decimal.Zero, err
	}

	usd := fiatAmount.Div(fx)
	return usd.Div(spot).Round(Precision(ticker)), nil
}

// Precision returns the display precision for a crypto ticker.
func Precision(ticker string) int32 {
	switch strings.ToUpper(ticker) {
	case "BTC", "LTC":
		return 8
	default:
		return 6
	}
}

// Format renders a crypto amount with currency-specific precision.
func Format(amount decimal.Decimal, ticker string) string {
	return amount.StringFixed(Precision(ticker))
}
