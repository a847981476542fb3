package fiat

import "testing"

func TestCatalogFind(t *testing.T) {
	cat := DefaultCatalog()

	cur, ok := cat.Find("usd")
	if !ok {
		t.Fatal("Find(usd): not found")
	}
	if cur.Code != "USD" || cur.Symbol != "$" {
		t.Errorf("Find(usd): got %+v", cur)
	}

	if _, ok := cat.Find("XXX"); ok {
		t.Error("Find(XXX): expected not found")
	}
}

func TestCatalogSymbolsDeduped(t *testing.T) {
	cat := Catalog{
		{Code: "USD", Symbol: "$"},
		{Code: "CAD", Symbol: "$"},
		{Code: "EUR", Symbol: "€"},
	}
	syms := cat.Symbols()
	if len(syms) != 2 {
		t.Fatalf("Symbols: got %v, want 2 distinct", syms)
	}
}

func TestPriceTableRate(t *testing.T) {
	table := PriceTable{"USD": 50000, "EUR": 0}

	if r, ok := table.Rate("usd"); !ok || r != 50000 {
		t.Errorf("Rate(usd): got %v, %v", r, ok)
	}
	// Zero rate is as good as absent.
	if _, ok := table.Rate("EUR"); ok {
		t.Error("Rate(EUR): zero rate should be absent")
	}
	if _, ok := table.Rate("GBP"); ok {
		t.Error("Rate(GBP): missing code should be absent")
	}
	var nilTable PriceTable
	if _, ok := nilTable.Rate("USD"); ok {
		t.Error("Rate on nil table should be absent")
	}
}

func TestParseDisplayMode(t *testing.T) {
	tests := []struct {
		in   string
		want DisplayMode
	}{
		{"dual-display", DisplayDual},
		{"bitcoin-only", DisplayBitcoinOnly},
		{"BITCOIN-ONLY", DisplayBitcoinOnly},
		{"", DisplayDual},
		{"garbage", DisplayDual},
	}
	for _, tt := range tests {
		if got := ParseDisplayMode(tt.in); got != tt.want {
			t.Errorf("ParseDisplayMode(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDenomination(t *testing.T) {
	tests := []struct {
		in   string
		want Denomination
	}{
		{"btc", DenomBTC},
		{"sats", DenomSats},
		{"satoshis", DenomSats},
		{"dynamic", DenomDynamic},
		{"", DenomDynamic},
		{"nonsense", DenomDynamic},
	}
	for _, tt := range tests {
		if got := ParseDenomination(tt.in); got != tt.want {
			t.Errorf("ParseDenomination(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPreferencesNormalize(t *testing.T) {
	p := Preferences{}.Normalize()
	if p.DefaultCurrency != "USD" {
		t.Errorf("Normalize: DefaultCurrency got %q, want USD", p.DefaultCurrency)
	}
	p = Preferences{DefaultCurrency: " eur "}.Normalize()
	if p.DefaultCurrency != "EUR" {
		t.Errorf("Normalize: got %q, want EUR", p.DefaultCurrency)
	}
}

func TestSiteDisabled(t *testing.T) {
	p := Preferences{DisabledSites: map[string]struct{}{"example.com": {}}}
	if !p.SiteDisabled("example.com") {
		t.Error("SiteDisabled(example.com): want true")
	}
	if !p.SiteDisabled("EXAMPLE.COM") {
		t.Error("SiteDisabled is case-insensitive on hostnames")
	}
	if p.SiteDisabled("other.com") {
		t.Error("SiteDisabled(other.com): want false")
	}
}
