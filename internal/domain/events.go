package domain

import "time"

// ChangeKind names what a ChangeEvent reports.
type ChangeKind string

const (
	ChangeTurnStarted      ChangeKind = "turnStarted"
	ChangeSlotFilled       ChangeKind = "slotFilled"
	ChangeAttemptCompleted ChangeKind = "attemptCompleted"
)

// ChangeEvent is emitted after every committed mutation of a Game's turns.
// Words of an attempt are only present once both slots are filled.
type ChangeEvent struct {
	Seq        uint64     `json:"seq"`
	GameID     string     `json:"gameId"`
	TurnID     string     `json:"turnId"`
	TurnSeq    int        `json:"turnSeq"`
	Kind       ChangeKind `json:"kind"`
	Word1      string     `json:"word1"`
	Word2      string     `json:"word2"`
	Attempt    int        `json:"attempt"`
	FilledA    bool       `json:"filledA"`
	FilledB    bool       `json:"filledB"`
	WordA      string     `json:"wordA,omitempty"`
	WordB      string     `json:"wordB,omitempty"`
	TurnClosed bool       `json:"turnClosed"`
	Matched    bool       `json:"matched"`
	Score      *int       `json:"score,omitempty"`
	At         time.Time  `json:"at"`
}

// FillCount is the number of filled slots for the event's attempt.
func (e ChangeEvent) FillCount() int {
	n := 0
	if e.FilledA {
		n++
	}
	if e.FilledB {
		n++
	}
	return n
}

// Filled reports whether slot is filled in the event's attempt.
func (e ChangeEvent) Filled(slot Slot) bool {
	if slot == SlotA {
		return e.FilledA
	}
	return e.FilledB
}

// Version orders events of one game: (turn, attempt, filled slots).
type Version struct {
	TurnSeq int
	Attempt int
	Fill    int
}

// Less reports whether v precedes o.
func (v Version) Less(o Version) bool {
	if v.TurnSeq != o.TurnSeq {
		return v.TurnSeq < o.TurnSeq
	}
	if v.Attempt != o.Attempt {
		return v.Attempt < o.Attempt
	}
	return v.Fill < o.Fill
}

// Version returns the event's position in the game's progression.
func (e ChangeEvent) Version() Version {
	return Version{TurnSeq: e.TurnSeq, Attempt: e.Attempt, Fill: e.FillCount()}
}

// NewTurnStarted describes a freshly created turn.
func NewTurnStarted(t Turn, at time.Time) ChangeEvent {
	return ChangeEvent{
		GameID:  t.GameID,
		TurnID:  t.ID,
		TurnSeq: t.Seq,
		Kind:    ChangeTurnStarted,
		Word1:   t.Pair.Word1,
		Word2:   t.Pair.Word2,
		At:      at,
	}
}

// NewSubmissionChange describes the state of attempt s of turn t after a slot
// write. Words are withheld until the attempt is complete.
func NewSubmissionChange(t Turn, s Submission, at time.Time) ChangeEvent {
	ev := ChangeEvent{
		GameID:  t.GameID,
		TurnID:  t.ID,
		TurnSeq: t.Seq,
		Kind:    ChangeSlotFilled,
		Word1:   t.Pair.Word1,
		Word2:   t.Pair.Word2,
		Attempt: s.Attempt,
		FilledA: s.WordA != nil,
		FilledB: s.WordB != nil,
		At:      at,
	}
	if s.Complete() {
		ev.Kind = ChangeAttemptCompleted
		ev.WordA = *s.WordA
		ev.WordB = *s.WordB
		ev.TurnClosed = !t.Open()
		ev.Matched = t.Matched
		if ev.TurnClosed && t.Score != nil {
			score := *t.Score
			ev.Score = &score
		}
	}
	return ev
}
