package convert

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/satlens/satlens/fiat"
)

// magnitudes maps a trailing suffix token to its multiplier. Matching is
// case-insensitive; single letters and full words are both accepted.
var magnitudes = map[string]float64{
	"k":           1e3,
	"thousand":    1e3,
	"m":           1e6,
	"million":     1e6,
	"b":           1e9,
	"bn":          1e9,
	"billion":     1e9,
	"t":           1e12,
	"trillion":    1e12,
	"q":           1e15,
	"quadrillion": 1e15,
}

// numberAndSuffix splits cleaned price text into the numeric part and an
// optional trailing magnitude token.
var numberAndSuffix = regexp.MustCompile(`^([\d.,\s\x{00a0}\x{202f}]+?)\s*([A-Za-z]+)?$`)

// ParseValue extracts the fiat numeric value from matched price text.
// symbol and code identify the active currency and are stripped before
// number parsing; when symbol is empty, every symbol in catalog is stripped
// instead. A trailing magnitude token (k, m, bn, trillion, ...) multiplies
// the result. Returns ErrNotANumber when the remainder is not numeric or
// the suffix is not a known magnitude.
func ParseValue(text, symbol, code string, catalog fiat.Catalog) (float64, error) {
	cleaned := text
	if symbol != "" {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	} else {
		for _, sym := range catalog.Symbols() {
			cleaned = strings.ReplaceAll(cleaned, sym, "")
		}
	}
	if code != "" {
		codeRe, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(code) + `\b`)
		if err == nil {
			cleaned = codeRe.ReplaceAllString(cleaned, "")
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, ErrNotANumber
	}

	m := numberAndSuffix.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, ErrNotANumber
	}

	mult := 1.0
	if m[2] != "" {
		var ok bool
		mult, ok = magnitudes[strings.ToLower(m[2])]
		if !ok {
			return 0, ErrNotANumber
		}
	}

	canonical, err := NormalizeNumber(m[1])
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(canonical, 64)
	if err != nil {
		return 0, ErrNotANumber
	}
	return v * mult, nil
}
