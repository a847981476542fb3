package convert

import (
	"strconv"

	"github.com/leekchan/accounting"

	"github.com/satlens/satlens/fiat"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = 100_000_000

// grouped renders a value with locale thousands grouping and no decimals.
var grouped = accounting.Accounting{Symbol: "", Precision: 0}

// FiatToSats converts a fiat amount to satoshis at the given rate
// (fiat units per BTC). The rate must be positive.
func FiatToSats(fiatValue, rate float64) float64 {
	return fiatValue / rate * SatsPerBTC
}

// FormatSats renders a satoshi amount in the requested denomination.
//
// Whatever the denomination, amounts of 100 BTC and above are always shown
// as whole BTC — a sats rendering of such values is unreadable. Dynamic
// picks sats below 0.01 BTC and two-decimal BTC above. The btc denomination
// uses tiered precision: more digits appear only as the value shrinks.
func FormatSats(sats float64, denom fiat.Denomination) string {
	btc := sats / SatsPerBTC

	if btc >= 100 {
		return grouped.FormatMoneyFloat64(btc) + " BTC"
	}

	switch denom {
	case fiat.DenomDynamic:
		if btc < 0.01 {
			return grouped.FormatMoneyFloat64(sats) + " sats"
		}
		return strconv.FormatFloat(btc, 'f', 2, 64) + " BTC"

	case fiat.DenomBTC:
		return strconv.FormatFloat(btc, 'f', btcPrecision(btc), 64) + " BTC"

	default: // DenomSats and anything unrecognised
		return grouped.FormatMoneyFloat64(sats) + " sats"
	}
}

// btcPrecision returns the decimal places for a BTC rendering, trading
// precision for readability as the value grows.
func btcPrecision(btc float64) int {
	switch {
	case btc >= 1:
		return 2
	case btc >= 0.01:
		return 4
	case btc >= 0.0001:
		return 5
	case btc >= 0.000001:
		return 6
	default:
		return 8
	}
}
