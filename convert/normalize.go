package convert

import (
	"regexp"
	"strings"
)

var canonicalNumber = regexp.MustCompile(`^[\d.]+$`)

// NormalizeNumber converts a raw numeric string in US ("1,234.56"),
// European ("1.234,56"), or space-grouped ("1 234,56") convention into a
// canonical decimal string with "." as the decimal point and no grouping.
//
// The disambiguation rules are deliberately heuristic and order-sensitive;
// they match the behaviour price test fixtures are built against:
//
//   - both "." and "," present: the one occurring last is the decimal
//     separator, the other is grouping and is removed;
//   - only "." present: more than one means grouping (all removed); a single
//     "." followed by exactly three digits means grouping ("1.425" → 1425),
//     anything else is a decimal point;
//   - only "," present: a final segment of length other than three makes it
//     the decimal point ("99,9" → 99.9), otherwise all commas are grouping;
//   - no separators: returned unchanged.
//
// Returns ErrNotANumber when the result is not purely digits and dots, so a
// malformed match never propagates as NaN.
func NormalizeNumber(s string) (string, error) {
	s = strings.TrimSpace(s)
	// Space and NBSP grouping is always thousands grouping; drop it before
	// the dot/comma analysis.
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ' ', ' ':
			return -1
		}
		return r
	}, s)

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}

	case dot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		} else if len(s)-dot-1 == 3 {
			// "1.425" is far more likely 1425 than 1.425.
			s = strings.ReplaceAll(s, ".", "")
		}

	case comma >= 0:
		parts := strings.Split(s, ",")
		if tail := parts[len(parts)-1]; len(tail) != 3 {
			s = strings.Join(parts[:len(parts)-1], "") + "." + tail
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	if !canonicalNumber.MatchString(s) {
		return "", ErrNotANumber
	}
	return s, nil
}
