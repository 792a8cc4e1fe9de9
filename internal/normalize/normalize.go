// Package normalize derives canonical counterparty keys from raw names.
//
// Raw names arrive from bank statements and extracted transaction rows with
// inconsistent casing, padding, and embedded reference numbers. Key reduces
// them to a stable form used for store lookups and deduplication:
//
//	"ACME  Corp 12345678901"   -> "acme corp"
//	"  Żabka Nova 4412  "      -> "żabka nova 4412"
//	"9876543210"               -> ""
package normalize

import (
	"strings"
	"unicode/utf8"
)

// MinStripDigits is the minimum length of a consecutive ASCII digit run
// that gets removed from a name. Shorter runs (store numbers, years) are
// kept because they distinguish otherwise identical counterparties.
const MinStripDigits = 10

// Key canonicalizes a raw counterparty name.
//
// Rules applied, in order:
//   - Converts to lowercase
//   - Collapses whitespace runs to a single space and trims
//   - Removes ASCII digit runs of MinStripDigits or more
//   - Collapses and trims again
//
// Key is pure, total, and idempotent: Key(Key(s)) == Key(s) for any input.
// An empty result means the name carried no usable entity (empty input, or
// nothing but account/reference digits); callers treat "" as "no entity".
func Key(raw string) string {
	s := strings.ToLower(raw)
	s = collapseSpace(s)
	s = stripDigitRuns(s)
	return collapseSpace(s)
}

// Display trims a raw name for presentation. The original casing is kept;
// only surrounding whitespace goes.
func Display(raw string) string {
	return strings.TrimSpace(raw)
}

// KeyLength counts the runes of a canonical key. Length checks run on
// runes, not bytes, so multi-byte names are not penalized.
func KeyLength(key string) int {
	return utf8.RuneCountInString(key)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripDigitRuns removes maximal runs of MinStripDigits or more consecutive
// ASCII digits. Runs are ASCII, so byte offsets count digits directly.
func stripDigitRuns(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	runStart := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			if i-runStart < MinStripDigits {
				out.WriteString(s[runStart:i])
			}
			runStart = -1
		}
		out.WriteRune(r)
	}
	if runStart >= 0 && len(s)-runStart < MinStripDigits {
		out.WriteString(s[runStart:])
	}

	return out.String()
}
