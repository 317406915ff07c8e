package odds

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Overround returns the sum of implied probabilities minus one.
// A positive value is the book's margin; a negative value means the
// prices combined pay out more than they take in.
func Overround(probs ...float64) float64 {
	total := 0.0
	for _, p := range probs {
		total += p
	}
	return total - 1
}

// RemoveVig normalizes a two-way market's implied probabilities so they
// sum to 1 (multiplicative method).
//
// Example: -110 / -110 (52.38% each) -> 50% / 50%
func RemoveVig(probA, probB float64) (fairA, fairB float64, err error) {
	if probA <= 0 || probA >= 1 || probB <= 0 || probB >= 1 {
		return 0, 0, fmt.Errorf("probabilities must be between 0 and 1, got %v and %v", probA, probB)
	}
	total := probA + probB
	return probA / total, probB / total, nil
}

// NormalizeGroup canonicalizes a leg's grouping attribute (usually a team
// name) so that spelling variants compare equal.
func NormalizeGroup(name string) string {
	name = strings.ToLower(name)

	// Strip accents
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	return strings.Join(strings.Fields(name), " ")
}
