package fiat

import "strings"

// DisplayMode controls whether the original fiat text is kept next to the
// bitcoin value or replaced by it.
type DisplayMode int

const (
	DisplayDual        DisplayMode = iota // "$25.00 | 50,000 sats"
	DisplayBitcoinOnly                    // "50,000 sats"
)

// String returns the wire name of the mode.
func (m DisplayMode) String() string {
	if m == DisplayBitcoinOnly {
		return "bitcoin-only"
	}
	return "dual-display"
}

// ParseDisplayMode maps a stored preference string to a DisplayMode.
// Unknown or empty values resolve to DisplayDual.
func ParseDisplayMode(s string) DisplayMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bitcoin-only", "bitcoin_only", "btc-only":
		return DisplayBitcoinOnly
	default:
		return DisplayDual
	}
}

// Denomination selects the unit used for the bitcoin value.
type Denomination int

const (
	DenomDynamic Denomination = iota // sats below 0.01 BTC, BTC above
	DenomBTC
	DenomSats
)

// String returns the wire name of the denomination.
func (d Denomination) String() string {
	switch d {
	case DenomBTC:
		return "btc"
	case DenomSats:
		return "sats"
	default:
		return "dynamic"
	}
}

// ParseDenomination maps a stored preference string to a Denomination.
// Unknown or empty values resolve to DenomDynamic.
func ParseDenomination(s string) Denomination {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "btc":
		return DenomBTC
	case "sats", "satoshis":
		return DenomSats
	default:
		return DenomDynamic
	}
}

// Preferences is the per-user snapshot loaded once per page pass.
// The rewriting core only reads it; the prefs store owns persistence.
type Preferences struct {
	DefaultCurrency string
	DisplayMode     DisplayMode
	Denomination    Denomination
	Highlight       bool
	DisabledSites   map[string]struct{}
}

// DefaultPreferences returns the built-in defaults used when the store is
// empty or unavailable.
func DefaultPreferences() Preferences {
	return Preferences{
		DefaultCurrency: "USD",
		DisplayMode:     DisplayDual,
		Denomination:    DenomDynamic,
	}
}

// Normalize fills zero-value fields with defaults. It runs once at context
// construction so the rest of the pipeline never re-checks for absence.
func (p Preferences) Normalize() Preferences {
	if strings.TrimSpace(p.DefaultCurrency) == "" {
		p.DefaultCurrency = "USD"
	}
	p.DefaultCurrency = strings.ToUpper(strings.TrimSpace(p.DefaultCurrency))
	return p
}

// SiteDisabled reports whether conversion is switched off for hostname.
func (p Preferences) SiteDisabled(hostname string) bool {
	if len(p.DisabledSites) == 0 {
		return false
	}
	_, ok := p.DisabledSites[strings.ToLower(strings.TrimSpace(hostname))]
	return ok
}
