// Package rewrite walks parsed HTML trees and annotates fiat price text
// with its bitcoin equivalent. It is the satlens core: a pure function of
// (subtree, Context) — no globals, no I/O — so it runs identically under
// the one-shot CLI, the preview server, and the live browser engine.
//
// Idempotence is carried by a processed marker attribute: any element the
// engine has rewritten is stamped and never rescanned, which is the sole
// safeguard that keeps the engine's own writes from becoming new work when
// it is driven by a mutation feed.
package rewrite

import "errors"

const (
	// ProcessedAttr marks an element whose fiat text has been converted.
	ProcessedAttr = "data-satlens-processed"

	// PriceClass is carried by every injected bitcoin-value span so later
	// passes and stylesheets can recognise annotated content.
	PriceClass = "satlens-btc"

	// HighlightClass is added to PriceClass when the highlight preference
	// is set.
	HighlightClass = "satlens-btc-highlight"

	// Separator sits between the original fiat text and the bitcoin value
	// in dual display.
	Separator = " | "
)

// ErrNoPriceTable is returned when no usable price table is available; the
// engine aborts the whole pass and leaves the page untouched.
var ErrNoPriceTable = errors.New("rewrite: no usable price table")

// ErrMissingRate is returned when the active currency has no rate in the
// table. Recovered per match: the original text stays verbatim.
var ErrMissingRate = errors.New("rewrite: no rate for active currency")
