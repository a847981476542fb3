// Package convert turns fiat price text into bitcoin display strings.
//
// It has four layers, each usable on its own: NormalizeNumber canonicalises
// locale-formatted numerics, ParseValue adds currency-token stripping and
// magnitude suffixes (k, m, bn, ...), Matcher finds price occurrences for
// one active currency in a block of text, and FormatSats renders a satoshi
// amount in the user's denomination.
package convert

import "errors"

// ErrNotANumber is returned when a matched substring cannot be converted to
// a numeric value. Callers skip the match and leave the original text as-is.
var ErrNotANumber = errors.New("convert: not a number")
