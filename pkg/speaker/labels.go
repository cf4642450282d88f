package speaker

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Thresholds for near-duplicate label detection. A candidate that shares
// a Double Metaphone code with an existing label only needs moderate
// string similarity to be flagged; without phonetic overlap the strings
// themselves must be nearly identical.
const (
	labelPhoneticThreshold = 0.84
	labelFuzzyThreshold    = 0.92
)

// NearDuplicateLabel reports whether candidate is confusably close to one
// of the existing labels, so that enrolling "Jon" next to "John" can be
// rejected or confirmed by the operator instead of silently splitting one
// person across two profiles.
//
// Matching is case-insensitive. A label counts as a near duplicate when
// it is equal under case folding, when any of its words phonetically
// matches a word of an existing label (Double Metaphone) and the full
// strings score at least 0.84 Jaro-Winkler similarity, or when the full
// strings alone score at least 0.92.
//
// Returns the best-scoring existing label and true when one qualifies.
func NearDuplicateLabel(existing []string, candidate string) (match string, ok bool) {
	cand := strings.ToLower(strings.TrimSpace(candidate))
	if cand == "" {
		return "", false
	}
	candCodes := metaphoneCodes(strings.Fields(cand))

	var (
		best      string
		bestScore float64
	)
	for _, label := range existing {
		lower := strings.ToLower(strings.TrimSpace(label))
		if lower == "" {
			continue
		}
		if lower == cand {
			return label, true
		}

		score := matchr.JaroWinkler(cand, lower, false)
		threshold := labelFuzzyThreshold
		if codesOverlap(candCodes, metaphoneCodes(strings.Fields(lower))) {
			threshold = labelPhoneticThreshold
		}
		if score >= threshold && score > bestScore {
			best = label
			bestScore = score
		}
	}
	if best != "" {
		return best, true
	}
	return "", false
}

// metaphoneCodes returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
