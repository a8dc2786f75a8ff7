package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxAttempt is the last attempt index of a Turn; five attempts in total.
	MaxAttempt = 4
	// MaxScore is awarded for a match on attempt 0.
	MaxScore = MaxAttempt + 1
)

// Slot identifies which half of a Submission a participant owns.
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

// Other returns the opposing slot.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// Participant is a human player or the AI stand-in. The AI has no ID.
type Participant struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName"`
	AI          bool   `json:"ai,omitempty"`
}

// AIParticipant is the stateless automated partner.
func AIParticipant() Participant {
	return Participant{DisplayName: "Wavebot", AI: true}
}

// Game pairs two participants. A is always the human with the lower ID; the
// AI, when present, always sits in B.
type Game struct {
	ID        string      `json:"id"`
	A         Participant `json:"participantA"`
	B         Participant `json:"participantB"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewGame canonicalizes the participant order. It is the only place slot
// ownership is decided; the result is stored and never recomputed.
func NewGame(id string, p1, p2 Participant, now time.Time) (Game, error) {
	if p1.AI && p2.AI {
		return Game{}, fmt.Errorf("%w: two stand-ins", ErrInvalidGame)
	}
	if !p1.AI && strings.TrimSpace(p1.ID) == "" || !p2.AI && strings.TrimSpace(p2.ID) == "" {
		return Game{}, fmt.Errorf("%w: missing participant id", ErrInvalidGame)
	}
	if !p1.AI && !p2.AI && p1.ID == p2.ID {
		return Game{}, fmt.Errorf("%w: participant cannot play themselves", ErrInvalidGame)
	}
	a, b := p1, p2
	if a.AI || (!b.AI && b.ID < a.ID) {
		a, b = b, a
	}
	if a.AI {
		a.ID = ""
	}
	if b.AI {
		b.ID = ""
	}
	return Game{ID: id, A: a, B: b, CreatedAt: now}, nil
}

// PairKey is the canonical key for the unordered participant pair.
func (g Game) PairKey() string {
	return PairKey(g.A, g.B)
}

// PairKey returns the canonical key for two participants regardless of order.
func PairKey(p1, p2 Participant) string {
	k1, k2 := participantKey(p1), participantKey(p2)
	if p1.AI || (!p2.AI && k2 < k1) {
		k1, k2 = k2, k1
	}
	return k1 + "|" + k2
}

func participantKey(p Participant) string {
	if p.AI {
		return "~ai"
	}
	return p.ID
}

// HasAI reports whether the stand-in plays slot B.
func (g Game) HasAI() bool {
	return g.B.AI
}

// SlotOf returns the slot owned by participantID.
func (g Game) SlotOf(participantID string) (Slot, error) {
	switch {
	case participantID == "":
		return "", ErrNotParticipant
	case g.A.ID == participantID:
		return SlotA, nil
	case !g.B.AI && g.B.ID == participantID:
		return SlotB, nil
	}
	return "", ErrNotParticipant
}

// Participant returns whoever owns slot.
func (g Game) Participant(slot Slot) Participant {
	if slot == SlotA {
		return g.A
	}
	return g.B
}

// WordPair is an immutable catalog entry of seed words.
type WordPair struct {
	ID    string `json:"id" yaml:"id"`
	Word1 string `json:"word1" yaml:"word1"`
	Word2 string `json:"word2" yaml:"word2"`
	Easy  bool   `json:"easy,omitempty" yaml:"easy"`
}

// PairFilter narrows a catalog listing.
type PairFilter struct {
	EasyOnly bool
}

// Submission is one attempt within a Turn.
type Submission struct {
	Attempt     int        `json:"attempt"`
	WordA       *string    `json:"wordA,omitempty"`
	WordB       *string    `json:"wordB,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Word returns the word in slot, if any.
func (s Submission) Word(slot Slot) *string {
	if slot == SlotA {
		return s.WordA
	}
	return s.WordB
}

// Filled reports whether slot has a word.
func (s Submission) Filled(slot Slot) bool {
	return s.Word(slot) != nil
}

// Complete reports whether the attempt has been scored.
func (s Submission) Complete() bool {
	return s.CompletedAt != nil
}

// Turn is one round played over a seed word pair.
type Turn struct {
	ID          string       `json:"id"`
	GameID      string       `json:"gameId"`
	Seq         int          `json:"seq"`
	Pair        WordPair     `json:"pair"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Score       *int         `json:"score,omitempty"`
	Matched     bool         `json:"matched"`
	Submissions []Submission `json:"submissions"`
}

// Open reports whether the turn is still being played.
func (t Turn) Open() bool {
	return t.CompletedAt == nil
}

// Active returns the attempt awaiting words. ok is false for closed turns.
func (t Turn) Active() (Submission, bool) {
	if !t.Open() || len(t.Submissions) == 0 {
		return Submission{}, false
	}
	last := t.Submissions[len(t.Submissions)-1]
	if last.Complete() {
		return Submission{}, false
	}
	return last, true
}

// Seeds returns the seed words of the turn.
func (t Turn) Seeds() [2]string {
	return [2]string{t.Pair.Word1, t.Pair.Word2}
}

// PriorWords lists every word of the completed attempts in this turn.
func (t Turn) PriorWords() []string {
	var words []string
	for _, s := range t.Submissions {
		if !s.Complete() {
			continue
		}
		for _, w := range []*string{s.WordA, s.WordB} {
			if w != nil {
				words = append(words, *w)
			}
		}
	}
	return words
}

// Connecting returns the two words the next attempt has to bridge: the seeds
// on attempt 0, otherwise the words of the last completed attempt.
func (t Turn) Connecting() [2]string {
	for i := len(t.Submissions) - 1; i >= 0; i-- {
		s := t.Submissions[i]
		if s.Complete() && s.WordA != nil && s.WordB != nil {
			return [2]string{*s.WordA, *s.WordB}
		}
	}
	return t.Seeds()
}

// Clone returns a deep copy safe to mutate.
func (t Turn) Clone() Turn {
	out := t
	out.CompletedAt = cloneTime(t.CompletedAt)
	if t.Score != nil {
		score := *t.Score
		out.Score = &score
	}
	out.Submissions = make([]Submission, len(t.Submissions))
	for i, s := range t.Submissions {
		out.Submissions[i] = Submission{
			Attempt:     s.Attempt,
			WordA:       cloneString(s.WordA),
			WordB:       cloneString(s.WordB),
			CreatedAt:   s.CreatedAt,
			CompletedAt: cloneTime(s.CompletedAt),
		}
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SubmitResult is returned to the player who wrote a slot.
type SubmitResult struct {
	TurnID       string `json:"turnId"`
	Attempt      int    `json:"attempt"`
	Accepted     bool   `json:"accepted"`
	Matched      *bool  `json:"matched,omitempty"`
	Score        *int   `json:"score,omitempty"`
	OpposingWord string `json:"opposingWord,omitempty"`
	TurnClosed   bool   `json:"turnClosed"`
}

// GameState is the authoritative snapshot a client projection is rebuilt from.
type GameState struct {
	Game        Game   `json:"game"`
	ClosedTurns []Turn `json:"closedTurns"`
	OpenTurn    *Turn  `json:"openTurn,omitempty"`
	TotalScore  int    `json:"totalScore"`
	Cursor      uint64 `json:"cursor"`
}

// Redacted hides the words of the open turn's active attempt that viewer does
// not own. Hidden slots keep a non-nil empty word so Filled still holds. An
// empty viewer hides both slots.
func (s GameState) Redacted(viewer Slot) GameState {
	if s.OpenTurn == nil {
		return s
	}
	open := s.OpenTurn.Clone()
	if n := len(open.Submissions); n > 0 && !open.Submissions[n-1].Complete() {
		sub := &open.Submissions[n-1]
		hidden := ""
		if viewer != SlotA && sub.WordA != nil {
			sub.WordA = &hidden
		}
		if viewer != SlotB && sub.WordB != nil {
			sub.WordB = &hidden
		}
	}
	s.OpenTurn = &open
	return s
}
