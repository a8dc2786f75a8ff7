package matching

import (
	"fmt"
	"strings"
	"unicode"

	"wavelink-service/internal/domain"
)

const (
	minAlphanumeric = 2
	maxTokens       = 2
	// words this short are only compared for equality, never as substrings.
	minSubstringLen = 3
)

// Validate rejects a word before any state is touched. seeds are the turn's
// seed words; prior holds every word already played in the turn.
func Validate(word string, seeds [2]string, prior []string) error {
	cleaned := Clean(word)
	if alphanumeric(cleaned) < minAlphanumeric {
		return domain.InvalidSubmission("word must have at least 2 letters or digits")
	}
	if len(strings.Fields(cleaned)) > maxTokens {
		return domain.InvalidSubmission("use one word or a two-word phrase")
	}

	candidate := Normalize(cleaned)
	for _, seed := range seeds {
		if overlaps(candidate, seed) {
			return domain.InvalidSubmission(fmt.Sprintf("%q is too close to the clue %q", cleaned, seed))
		}
	}
	for _, w := range prior {
		if overlaps(candidate, w) {
			return domain.InvalidSubmission(fmt.Sprintf("%q was already played this round (%q)", cleaned, w))
		}
	}
	return nil
}

func overlaps(candidate, other string) bool {
	o := Normalize(other)
	if o == "" {
		return false
	}
	if candidate == o {
		return true
	}
	if len(o) >= minSubstringLen && strings.Contains(candidate, o) {
		return true
	}
	return len(candidate) >= minSubstringLen && strings.Contains(o, candidate)
}

func alphanumeric(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
