// Package fiat defines the currency catalog, price table, and user
// preferences shared by every satlens component. The catalog is a fixed
// list of {ISO code, symbol} pairs; symbols may collide across currencies
// ($ for USD/CAD/AUD), so matching is always scoped to one active currency.
package fiat

import "strings"

// Currency is one entry of the supported-currency catalog.
type Currency struct {
	Code   string `json:"code" yaml:"code"`     // 3-letter ISO identifier, upper case
	Symbol string `json:"symbol" yaml:"symbol"` // display symbol, not unique
}

// Catalog is the set of currencies satlens knows how to detect.
type Catalog []Currency

// Find returns the currency with the given ISO code (case-insensitive).
func (c Catalog) Find(code string) (Currency, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, cur := range c {
		if cur.Code == code {
			return cur, true
		}
	}
	return Currency{}, false
}

// Symbols returns the distinct symbols in catalog order.
func (c Catalog) Symbols() []string {
	seen := make(map[string]struct{}, len(c))
	out := make([]string, 0, len(c))
	for _, cur := range c {
		if _, ok := seen[cur.Symbol]; ok {
			continue
		}
		seen[cur.Symbol] = struct{}{}
		out = append(out, cur.Symbol)
	}
	return out
}

// DefaultCatalog returns the built-in currency catalog. It is the fallback
// when the catalog collaborator is unavailable at startup.
func DefaultCatalog() Catalog {
	return Catalog{
		{Code: "USD", Symbol: "$"},
		{Code: "EUR", Symbol: "€"},
		{Code: "GBP", Symbol: "£"},
		{Code: "JPY", Symbol: "¥"},
		{Code: "CAD", Symbol: "$"},
		{Code: "AUD", Symbol: "$"},
		{Code: "CHF", Symbol: "Fr"},
		{Code: "CNY", Symbol: "¥"},
		{Code: "INR", Symbol: "₹"},
		{Code: "KRW", Symbol: "₩"},
		{Code: "RUB", Symbol: "₽"},
		{Code: "BRL", Symbol: "R$"},
		{Code: "MXN", Symbol: "$"},
		{Code: "SEK", Symbol: "kr"},
		{Code: "NOK", Symbol: "kr"},
		{Code: "DKK", Symbol: "kr"},
		{Code: "PLN", Symbol: "zł"},
		{Code: "TRY", Symbol: "₺"},
		{Code: "NZD", Symbol: "$"},
		{Code: "ZAR", Symbol: "R"},
	}
}

// PriceTable maps an ISO currency code to the fiat price of one bitcoin.
// Rates are positive; the table is treated as immutable for the duration
// of a scan cycle.
type PriceTable map[string]float64

// Rate returns the BTC exchange rate for code (case-insensitive).
// A zero or negative stored rate is reported as absent.
func (p PriceTable) Rate(code string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	r, ok := p[strings.ToUpper(strings.TrimSpace(code))]
	if !ok || r <= 0 {
		return 0, false
	}
	return r, true
}
