// Package textmatch provides fuzzy comparison of recognized text so the
// reader can tell "same sign, still in view" apart from "new sign".
package textmatch

import (
	"strings"
	"unicode"

	"github.com/sightlens/platform/internal/classify"
)

// Normalize lower-cases s and strips everything except word characters
// and the supported non-Latin script ranges. Keeping the script ranges
// means script text is never hollowed out before comparison.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if isWordRune(r) || classify.InScriptRange(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Similar reports whether a and b are the same text up to OCR jitter.
// Substring containment absorbs framing jitter that adds or drops
// characters at the edges of a capture; otherwise normalized Levenshtein
// similarity is compared against the caller's threshold.
func Similar(a, b string, threshold float64) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	ra, rb := []rune(na), []rune(nb)
	longest := max(len(ra), len(rb))
	sim := 1 - float64(Distance(ra, rb))/float64(longest)
	return sim >= threshold
}

// Distance computes the Levenshtein edit distance between two rune
// sequences using a single-row DP table.
func Distance(a, b []rune) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur := make([]int, lb+1)
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			m := prev[j] + 1 // deletion
			if ins := cur[j-1] + 1; ins < m {
				m = ins
			}
			if sub := prev[j-1] + cost; sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev = cur
	}
	return prev[lb]
}
