package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/satlens/satlens/fiat"
	"github.com/satlens/satlens/urlguard"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGecko fetches BTC prices from the CoinGecko free API.
type CoinGecko struct {
	client     *http.Client
	baseURL    string
	currencies []string
	limiter    *RateLimiter
}

// CoinGeckoOption configures a CoinGecko supplier.
type CoinGeckoOption func(*CoinGecko)

// WithBaseURL overrides the API base URL (for tests).
func WithBaseURL(u string) CoinGeckoOption {
	return func(c *CoinGecko) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) CoinGeckoOption {
	return func(c *CoinGecko) { c.client = hc }
}

// NewCoinGecko creates a supplier for the given currency catalog with
// built-in rate limiting. The free API allows roughly 10 requests per
// minute; one token every 7.5 seconds stays well under that.
func NewCoinGecko(catalog fiat.Catalog, opts ...CoinGeckoOption) *CoinGecko {
	currencies := make([]string, 0, len(catalog))
	for _, c := range catalog {
		currencies = append(currencies, strings.ToLower(c.Code))
	}
	cg := &CoinGecko{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    coingeckoBaseURL,
		currencies: currencies,
		limiter:    NewRateLimiter(8, 7500*time.Millisecond),
	}
	for _, o := range opts {
		o(cg)
	}
	return cg
}

// Rates fetches the current BTC price in every catalog currency with a
// single API call.
func (c *CoinGecko) Rates(ctx context.Context) (fiat.PriceTable, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rates: rate limit wait: %w", err)
	}

	url := fmt.Sprintf("%s/simple/price?ids=bitcoin&vs_currencies=%s",
		c.baseURL, strings.Join(c.currencies, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("rates: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates: fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := urlguard.LimitedReadAll(resp.Body, urlguard.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("rates: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates: coingecko API error %d: %s", resp.StatusCode, body)
	}

	// Response shape: {"bitcoin": {"usd": 97000, "eur": 89000, ...}}
	var raw map[string]map[string]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("rates: parse response: %w", err)
	}

	prices, ok := raw["bitcoin"]
	if !ok || len(prices) == 0 {
		return nil, ErrNoRates
	}

	table := make(fiat.PriceTable, len(prices))
	for code, price := range prices {
		if price <= 0 {
			continue
		}
		table[strings.ToUpper(code)] = price
	}
	if len(table) == 0 {
		return nil, ErrNoRates
	}
	return table, nil
}
