// Package matching decides whether two submitted words converge and scores
// the attempt they were submitted on.
package matching

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/cases"

	"wavelink-service/internal/domain"
)

// maxDistance is the largest edit distance between stems still counted as a match.
const maxDistance = 1

// stripped punctuation; anything else (hyphens, apostrophes, digits) is kept.
var punctuation = strings.NewReplacer(
	".", "", ",", "", "/", "", "#", "", "!", "", "$", "", "%", "", "^", "",
	"&", "", "*", "", ";", "", ":", "", "{", "", "}", "", "=", "", "_", "",
	"`", "", "~", "", "(", "", ")", "",
)

// exceptions are pairs the stemmer fails to unify. Keys are sorted.
var exceptions = map[[2]string]struct{}{
	{"feet", "foot"}:        {},
	{"vocal", "voice"}:      {},
	{"fry", "fryer"}:        {},
	{"clothes", "clothing"}: {},
	{"coin", "coinage"}:     {},
	{"wait", "waiter"}:      {},
	{"flight", "fly"}:       {},
}

// Result is the outcome of comparing the two slots of one attempt.
type Result struct {
	Matched bool `json:"matched"`
	// Exhausted is set when the final attempt did not match; the turn closes anyway.
	Exhausted bool `json:"exhausted"`
	Score     int  `json:"score"`
}

// Closes reports whether the attempt ends the turn.
func (r Result) Closes() bool {
	return r.Matched || r.Exhausted
}

// Clean strips punctuation and surrounding whitespace, keeping case.
func Clean(word string) string {
	return strings.Join(strings.Fields(punctuation.Replace(word)), " ")
}

// Normalize cleans and case-folds a word.
func Normalize(word string) string {
	return cases.Fold().String(Clean(word))
}

// Stem reduces every token of a normalized word to its root form.
func Stem(normalized string) string {
	tokens := strings.Fields(normalized)
	for i, tok := range tokens {
		tokens[i] = english.Stem(tok, true)
	}
	return strings.Join(tokens, " ")
}

// Evaluate compares a candidate against the opposing slot's word on attempt.
// It is symmetric in its two word arguments.
func Evaluate(candidate, opposing string, attempt int) Result {
	a, b := Normalize(candidate), Normalize(opposing)
	matched := a != "" && b != "" &&
		(levenshtein.ComputeDistance(Stem(a), Stem(b)) <= maxDistance || isException(a, b))

	switch {
	case matched:
		return Result{Matched: true, Score: domain.MaxScore - attempt}
	case attempt >= domain.MaxAttempt:
		return Result{Exhausted: true}
	default:
		return Result{}
	}
}

func isException(a, b string) bool {
	if b < a {
		a, b = b, a
	}
	_, ok := exceptions[[2]string{a, b}]
	return ok
}
