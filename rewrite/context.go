package rewrite

import (
	"log/slog"

	"github.com/satlens/satlens/convert"
	"github.com/satlens/satlens/fiat"
)

// Context carries everything one traversal pass needs: the preference
// snapshot, the active currency, the price table, and the compiled matcher.
// Preference defaults are resolved once here, never downstream, so the
// walker and formatter see fully-determined values.
type Context struct {
	Prefs    fiat.Preferences
	Currency fiat.Currency
	Rates    fiat.PriceTable
	Matcher  *convert.Matcher
	Catalog  fiat.Catalog
	Logger   *slog.Logger

	// Replaced counts committed price replacements across the pass.
	Replaced int
}

// NewContext resolves preferences against the catalog and builds the pass
// context. It fails with ErrNoPriceTable when the table is empty — the
// caller must then skip the page entirely (fail open, original prices
// shown). An unknown default currency falls back to the catalog's first
// entry.
func NewContext(prefs fiat.Preferences, catalog fiat.Catalog, rates fiat.PriceTable, logger *slog.Logger) (*Context, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(catalog) == 0 {
		catalog = fiat.DefaultCatalog()
	}
	if len(rates) == 0 {
		return nil, ErrNoPriceTable
	}

	prefs = prefs.Normalize()
	cur, ok := catalog.Find(prefs.DefaultCurrency)
	if !ok {
		logger.Warn("rewrite: unknown default currency, falling back",
			"currency", prefs.DefaultCurrency, "fallback", catalog[0].Code)
		cur = catalog[0]
	}

	return &Context{
		Prefs:    prefs,
		Currency: cur,
		Rates:    rates,
		Matcher:  convert.MatcherFor(cur),
		Catalog:  catalog,
		Logger:   logger,
	}, nil
}

// ConvertText converts a single price string to its Bitcoin display
// string. When text is not a bare price it falls back to the first price
// match found inside it.
func (c *Context) ConvertText(text string) (string, error) {
	out, err := c.formatFiat(text)
	if err == nil {
		return out, nil
	}
	ms := c.Matcher.Find(text)
	if len(ms) == 0 {
		return "", err
	}
	return c.formatFiat(ms[0].Text)
}

// rate returns the BTC rate for the active currency.
func (c *Context) rate() (float64, error) {
	r, ok := c.Rates.Rate(c.Currency.Code)
	if !ok {
		return 0, ErrMissingRate
	}
	return r, nil
}

// formatFiat converts matched fiat text to its display string, or an error
// when the match cannot be converted (the caller then keeps the original
// text verbatim).
func (c *Context) formatFiat(text string) (string, error) {
	rate, err := c.rate()
	if err != nil {
		return "", err
	}
	value, err := convert.ParseValue(text, c.Currency.Symbol, c.Currency.Code, c.Catalog)
	if err != nil {
		return "", err
	}
	sats := convert.FiatToSats(value, rate)
	return convert.FormatSats(sats, c.Prefs.Denomination), nil
}
