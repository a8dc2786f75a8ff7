package matching

import (
	"errors"
	"testing"

	"wavelink-service/internal/domain"
)

func TestEvaluateSameWordAlwaysMatches(t *testing.T) {
	for _, w := range []string{"gas", "Steam", "ice cream", "running", "x1"} {
		for attempt := 0; attempt <= domain.MaxAttempt; attempt++ {
			res := Evaluate(w, w, attempt)
			if !res.Matched {
				t.Fatalf("expected %q to match itself on attempt %d", w, attempt)
			}
			if res.Score != 5-attempt {
				t.Fatalf("expected score %d, got %d", 5-attempt, res.Score)
			}
		}
	}
}

func TestEvaluateIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"element", "steam"},
		{"runs", "run"},
		{"fry", "fryer"},
		{"Voice", "vocal"},
		{"cat", "cart"},
		{"ocean", "sea"},
	}
	for _, p := range pairs {
		for attempt := 0; attempt <= domain.MaxAttempt; attempt++ {
			ab := Evaluate(p[0], p[1], attempt)
			ba := Evaluate(p[1], p[0], attempt)
			if ab != ba {
				t.Fatalf("asymmetric result for %v on attempt %d: %+v vs %+v", p, attempt, ab, ba)
			}
		}
	}
}

func TestEvaluateStemsAndNormalizes(t *testing.T) {
	res := Evaluate("Runs!", "run", 2)
	if !res.Matched || res.Score != 3 {
		t.Fatalf("expected stemmed match with score 3, got %+v", res)
	}
	res = Evaluate("cat", "cart", 0)
	if !res.Matched {
		t.Fatalf("expected edit distance 1 to match")
	}
}

func TestEvaluateMismatchKeepsTurnOpenBeforeLastAttempt(t *testing.T) {
	res := Evaluate("Element", "Steam", 0)
	if res.Matched || res.Exhausted || res.Closes() {
		t.Fatalf("expected open mismatch, got %+v", res)
	}
}

func TestEvaluateExhaustsOnLastAttempt(t *testing.T) {
	res := Evaluate("ocean", "desert", domain.MaxAttempt)
	if res.Matched || !res.Exhausted || res.Score != 0 || !res.Closes() {
		t.Fatalf("expected exhaustion with zero score, got %+v", res)
	}
}

func TestEvaluateExceptionTable(t *testing.T) {
	res := Evaluate("fry", "fryer", 1)
	if !res.Matched || res.Score != 4 {
		t.Fatalf("expected fry/fryer to match via exceptions, got %+v", res)
	}
	if !Evaluate("FEET", "foot", 0).Matched {
		t.Fatalf("expected feet/foot to match")
	}
}

func TestValidate(t *testing.T) {
	seeds := [2]string{"Fire", "Water"}
	prior := []string{"Element", "Steam"}

	cases := []struct {
		name  string
		word  string
		valid bool
	}{
		{name: "ok", word: "Gas", valid: true},
		{name: "two tokens", word: "hot spring", valid: true},
		{name: "too short", word: "a!", valid: false},
		{name: "punctuation only", word: "...", valid: false},
		{name: "three tokens", word: "one two three", valid: false},
		{name: "equals seed", word: "fire", valid: false},
		{name: "contains seed", word: "Firefly", valid: false},
		{name: "inside seed", word: "ate", valid: false},
		{name: "played before", word: "steam", valid: false},
		{name: "contains played", word: "steamboat", valid: false},
	}
	for _, tc := range cases {
		err := Validate(tc.word, seeds, prior)
		if tc.valid && err != nil {
			t.Fatalf("%s: unexpected rejection: %v", tc.name, err)
		}
		if !tc.valid {
			if !errors.Is(err, domain.ErrInvalidSubmission) {
				t.Fatalf("%s: expected invalid submission, got %v", tc.name, err)
			}
			var reason *domain.InvalidSubmissionError
			if !errors.As(err, &reason) || reason.Reason == "" {
				t.Fatalf("%s: expected a reason, got %v", tc.name, err)
			}
		}
	}
}

func TestValidateIgnoresShortWordsForSubstrings(t *testing.T) {
	if err := Validate("oxen", [2]string{"ox", "cart"}, nil); err != nil {
		t.Fatalf("expected short seed to be ignored for substrings, got %v", err)
	}
	if err := Validate("ox", [2]string{"ox", "cart"}, nil); err == nil {
		t.Fatalf("expected exact seed match to be rejected")
	}
	if err := Validate("at", [2]string{"Fire", "Water"}, nil); err != nil {
		t.Fatalf("expected short word inside a seed to be accepted, got %v", err)
	}
	if err := Validate("at", [2]string{"Fire", "Water"}, []string{"Cat"}); err != nil {
		t.Fatalf("expected short word inside a played word to be accepted, got %v", err)
	}
}
