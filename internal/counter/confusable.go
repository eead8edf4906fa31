package counter

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// ConfusablePairs returns keyword pairs whose Double Metaphone codes
// collide. Such pairs sound alike to a speech recognizer (e.g. "there" and
// "their"), so a spoken occurrence of one may be transcribed as the other
// and counted against the wrong keyword. Run at startup to warn operators;
// the match contract itself stays pure substring containment.
func ConfusablePairs(keywords []string) [][2]string {
	codes := make([]map[string]struct{}, len(keywords))
	for i, kw := range keywords {
		codes[i] = phoneticCodes(kw)
	}

	var pairs [][2]string
	for i := 0; i < len(keywords); i++ {
		for j := i + 1; j < len(keywords); j++ {
			if keywords[i] == keywords[j] {
				continue
			}
			if codesOverlap(codes[i], codes[j]) {
				pairs = append(pairs, [2]string{keywords[i], keywords[j]})
			}
		}
	}
	return pairs
}

// phoneticCodes returns the union of Double Metaphone codes for every token
// of the keyword. Empty codes (words too short or with no consonants) are
// excluded.
func phoneticCodes(keyword string) map[string]struct{} {
	tokens := strings.Fields(strings.ToLower(keyword))
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
