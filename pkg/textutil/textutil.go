package textutil

import (
	"regexp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases and removes all whitespace, so strings that only
// differ in case or spacing compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// BestMatch returns the candidate most similar to target by Jaro-Winkler
// similarity on normalized text. Candidates are visited in sorted order so
// ties resolve the same way every time.
func BestMatch(target string, candidates []string) (string, float64) {
	sorted := slices.Clone(candidates)
	slices.Sort(sorted)

	normalizedTarget := NormalizeName(target)

	var best string
	var bestSimilarity float64
	for _, c := range sorted {
		similarity := matchr.JaroWinkler(normalizedTarget, NormalizeName(c), false)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = c
		}
	}
	return best, bestSimilarity
}
