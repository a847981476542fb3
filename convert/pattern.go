package convert

import (
	"regexp"
	"strings"
	"sync"

	"github.com/satlens/satlens/fiat"
)

// Match is one price occurrence found in a block of text. Text holds the
// matched price without trailing whitespace; Trailing holds whatever
// whitespace the pattern consumed after it, so callers can write it back
// verbatim when splicing replacements.
type Match struct {
	Start    int
	End      int // end of Text, excluding Trailing
	Text     string
	Trailing string
}

// Matcher finds price occurrences for a single active currency.
// Build one with MatcherFor; it is safe for concurrent use.
type Matcher struct {
	re       *regexp.Regexp
	currency fiat.Currency
}

const magnitudeAlt = `(?:k|m|bn|b|t|q|thousand|million|billion|trillion|quadrillion)`

// buildPattern assembles the price regex for one currency. Two forms are
// recognised, word-bounded and case-insensitive for magnitude and ISO code:
//
//	<symbol><optional space><number>[magnitude]
//	<number>[magnitude]<optional space><symbol or ISO code>
//
// A final capture group swallows at most one whitespace character so that
// "number then code" matches terminate on a word boundary; Find separates
// it back out into Match.Trailing.
func buildPattern(c fiat.Currency) *regexp.Regexp {
	sym := regexp.QuoteMeta(c.Symbol)
	code := regexp.QuoteMeta(c.Code)
	num := `\d(?:[\d.,\s\x{00a0}\x{202f}]*\d)?`

	pattern := `(?i)(?:` +
		sym + `\s?` + num + `(?:\s?` + magnitudeAlt + `\b)?` +
		`|` +
		`\b` + num + `(?:\s?` + magnitudeAlt + `)?\s?(?:` + sym + `|\b` + code + `\b)` +
		`)(\s?)`
	return regexp.MustCompile(pattern)
}

// matcherCache memoizes the compiled pattern keyed on the active currency.
// The regex is only rebuilt when the currency (or its catalog entry)
// changes, not on every scan.
var matcherCache struct {
	mu  sync.Mutex
	key string
	m   *Matcher
}

// MatcherFor returns the Matcher for the active currency, reusing the
// previously compiled pattern when the currency is unchanged.
func MatcherFor(c fiat.Currency) *Matcher {
	key := c.Code + "\x00" + c.Symbol
	matcherCache.mu.Lock()
	defer matcherCache.mu.Unlock()
	if matcherCache.key == key && matcherCache.m != nil {
		return matcherCache.m
	}
	m := &Matcher{re: buildPattern(c), currency: c}
	matcherCache.key = key
	matcherCache.m = m
	return m
}

// Currency returns the currency this matcher was built for.
func (m *Matcher) Currency() fiat.Currency { return m.currency }

// Find returns all non-overlapping price matches in text, left to right,
// first-match-wins. Whitespace consumed after a price is reported in
// Trailing, never folded into Text.
func (m *Matcher) Find(text string) []Match {
	idx := m.re.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}
	out := make([]Match, 0, len(idx))
	for _, loc := range idx {
		start, end := loc[0], loc[1]
		matched := text[start:end]
		trailing := ""
		if loc[2] >= 0 && loc[3] > loc[2] {
			trailing = text[loc[2]:loc[3]]
			matched = matched[:len(matched)-len(trailing)]
		}
		// The number class is greedy on spaces; give back any whitespace
		// it swallowed at the end of the price itself.
		trimmed := strings.TrimRight(matched, " \t  ")
		trailing = matched[len(trimmed):] + trailing
		out = append(out, Match{
			Start:    start,
			End:      start + len(trimmed),
			Text:     trimmed,
			Trailing: trailing,
		})
	}
	return out
}
