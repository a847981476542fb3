// Package rates supplies the fiat-per-BTC price table the rewrite engine
// converts with. The CoinGecko client is the live source; Cached wraps any
// Supplier with a TTL cache plus SQLite last-good persistence so a flapping
// upstream degrades to stale rates instead of broken pages.
package rates

import (
	"context"
	"errors"

	"github.com/satlens/satlens/fiat"
)

// ErrNoRates is returned when a supplier has nothing to serve, not even a
// stale snapshot.
var ErrNoRates = errors.New("rates: no price table available")

// Supplier provides the current fiat price of one bitcoin, keyed by
// uppercase ISO 4217 code.
type Supplier interface {
	Rates(ctx context.Context) (fiat.PriceTable, error)
}

// Fixed is a static Supplier for offline runs and tests.
type Fixed fiat.PriceTable

// Rates returns the fixed table.
func (f Fixed) Rates(ctx context.Context) (fiat.PriceTable, error) {
	if len(f) == 0 {
		return nil, ErrNoRates
	}
	out := make(fiat.PriceTable, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out, nil
}
