package projection

import (
	"testing"
	"time"

	"wavelink-service/internal/domain"
)

func newGame() domain.Game {
	return domain.Game{
		ID: "g1",
		A:  domain.Participant{ID: "u1", DisplayName: "Alice"},
		B:  domain.Participant{ID: "u2", DisplayName: "Bob"},
	}
}

func started(seq uint64, turnSeq int) domain.ChangeEvent {
	return domain.ChangeEvent{Seq: seq, GameID: "g1", TurnID: "t1", TurnSeq: turnSeq, Kind: domain.ChangeTurnStarted, Word1: "Fire", Word2: "Water"}
}

func filled(seq uint64, attempt int, a, b bool) domain.ChangeEvent {
	return domain.ChangeEvent{Seq: seq, GameID: "g1", TurnID: "t1", TurnSeq: 1, Kind: domain.ChangeSlotFilled, Attempt: attempt, FilledA: a, FilledB: b, Word1: "Fire", Word2: "Water"}
}

func completed(seq uint64, attempt int, wordA, wordB string, score *int) domain.ChangeEvent {
	ev := domain.ChangeEvent{
		Seq: seq, GameID: "g1", TurnID: "t1", TurnSeq: 1, Kind: domain.ChangeAttemptCompleted,
		Attempt: attempt, FilledA: true, FilledB: true, WordA: wordA, WordB: wordB,
		Word1: "Fire", Word2: "Water", At: time.Now(),
	}
	if score != nil {
		ev.TurnClosed = true
		ev.Matched = *score > 0
		ev.Score = score
	}
	return ev
}

func loaded(t *testing.T, participantID string) *Mirror {
	t.Helper()
	m := NewMirror(participantID)
	if err := m.Load(domain.GameState{Game: newGame()}); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func TestMirrorFollowsTurn(t *testing.T) {
	m := loaded(t, "u1")
	if m.State() != NoOpenTurn {
		t.Fatalf("expected no open turn, got %s", m.State())
	}

	m.Apply(started(1, 1))
	if m.State() != YourMove {
		t.Fatalf("expected your move, got %s", m.State())
	}

	m.Apply(filled(2, 0, false, true))
	if m.State() != YourMove {
		t.Fatalf("partner fill must not change my move, got %s", m.State())
	}

	m.Apply(completed(3, 0, "Element", "Steam", nil))
	view := m.View()
	if view.State != YourMoveAfterMismatch || len(view.OpenTurn.Attempts) != 2 {
		t.Fatalf("expected mismatch on attempt 0, got %+v", view)
	}
	if got := view.OpenTurn.Attempts[0]; got.WordA != "Element" || got.WordB != "Steam" || !got.Complete {
		t.Fatalf("unexpected attempt view %+v", got)
	}

	m.Apply(filled(4, 1, true, false))
	if m.State() != WaitingOnPartner {
		t.Fatalf("expected waiting on partner, got %s", m.State())
	}

	score := 4
	m.Apply(completed(5, 1, "Gas", "Gas", &score))
	view = m.View()
	if view.State != NoOpenTurn || len(view.History) != 1 || view.TotalScore != 4 || view.Cursor != 5 {
		t.Fatalf("expected closed turn worth 4, got %+v", view)
	}
	if m.Gap() {
		t.Fatalf("expected no gap")
	}
}

func TestMirrorReplayIsIdempotent(t *testing.T) {
	events := []domain.ChangeEvent{started(1, 1), filled(2, 0, true, false), completed(3, 0, "Element", "Steam", nil)}

	m := loaded(t, "u2")
	m.ApplyBatch(events)
	before := m.View()

	if m.ApplyBatch(events) {
		t.Fatalf("replayed events must not change the mirror")
	}
	after := m.View()
	if after.Cursor != before.Cursor || len(after.OpenTurn.Attempts) != len(before.OpenTurn.Attempts) || after.State != before.State {
		t.Fatalf("replay changed the view: %+v vs %+v", before, after)
	}
}

func TestMirrorBuffersOutOfOrderEvents(t *testing.T) {
	m := loaded(t, "u1")

	if m.Apply(filled(5, 1, false, true)) {
		t.Fatalf("an event for a later attempt must be buffered")
	}
	if !m.Gap() || m.Cursor() != 0 {
		t.Fatalf("expected a gap at cursor 0, got gap=%v cursor=%d", m.Gap(), m.Cursor())
	}

	m.Apply(started(1, 1))
	if view := m.View(); len(view.OpenTurn.Attempts) != 1 {
		t.Fatalf("attempt 1 event must stay buffered until attempt 0 completes, got %+v", view.OpenTurn)
	}

	m.Apply(completed(3, 0, "Element", "Steam", nil))
	view := m.View()
	if len(view.OpenTurn.Attempts) != 2 || !view.OpenTurn.Attempts[1].FilledB {
		t.Fatalf("expected buffered event drained, got %+v", view.OpenTurn)
	}
	// seq 2 and 4 were never received.
	if !m.Gap() || m.Cursor() != 1 {
		t.Fatalf("expected gap after seq 1, got gap=%v cursor=%d", m.Gap(), m.Cursor())
	}

	m.ApplyBatch([]domain.ChangeEvent{filled(2, 0, true, false), filled(4, 1, false, true)})
	if m.Gap() || m.Cursor() != 5 {
		t.Fatalf("expected catch-up to close the gap, got gap=%v cursor=%d", m.Gap(), m.Cursor())
	}
}

func TestMirrorRecoversMissedTurnStart(t *testing.T) {
	m := loaded(t, "u1")
	m.Apply(filled(2, 0, false, true))
	view := m.View()
	if view.OpenTurn == nil || view.OpenTurn.Word1 != "Fire" || view.State != YourMove {
		t.Fatalf("expected turn synthesized from slot event, got %+v", view)
	}
}

func TestMirrorLoadHidesPartnerWord(t *testing.T) {
	gas := "Gas"
	state := domain.GameState{
		Game:     newGame(),
		OpenTurn: &domain.Turn{ID: "t1", Seq: 1, Pair: domain.WordPair{Word1: "Fire", Word2: "Water"}, Submissions: []domain.Submission{{Attempt: 0, WordB: &gas}}},
		Cursor:   7,
	}
	m := NewMirror("u1")
	if m.Apply(started(1, 1)) {
		t.Fatalf("events before load must be buffered")
	}
	if err := m.Load(state); err != nil {
		t.Fatalf("load: %v", err)
	}
	view := m.View()
	if view.Cursor != 7 || view.OpenTurn.Attempts[0].WordB != "" || !view.OpenTurn.Attempts[0].FilledB {
		t.Fatalf("unexpected view %+v", view.OpenTurn)
	}
	if m.Gap() {
		t.Fatalf("stale buffered events must be dropped on load")
	}

	if err := NewMirror("u3").Load(state); err == nil {
		t.Fatalf("expected outsider load to fail")
	}
}

func TestMirrorComposing(t *testing.T) {
	m := loaded(t, "u1")
	if m.BeginComposing() {
		t.Fatalf("cannot compose without an open turn")
	}
	m.Apply(started(1, 1))
	if !m.BeginComposing() || m.State() != Composing {
		t.Fatalf("expected composing")
	}
	m.Resume()
	if m.State() != YourMove {
		t.Fatalf("expected resume to return to your move, got %s", m.State())
	}

	m.BeginComposing()
	m.Apply(filled(2, 0, false, true))
	if m.State() != YourMove {
		t.Fatalf("applied change must clear composing, got %s", m.State())
	}
}

func TestMirrorApplyResult(t *testing.T) {
	m := loaded(t, "u2")
	m.Apply(started(1, 1))

	if !m.ApplyResult(domain.SubmitResult{TurnID: "t1", Attempt: 0, Accepted: true}, "Steam") {
		t.Fatalf("expected own partial write to apply")
	}
	if m.State() != WaitingOnPartner || m.View().OpenTurn.Attempts[0].WordB != "Steam" {
		t.Fatalf("expected waiting on partner with own word, got %+v", m.View())
	}
	if m.ApplyResult(domain.SubmitResult{TurnID: "other", Attempt: 0, Accepted: true}, "Gas") {
		t.Fatalf("result for another turn must be ignored")
	}
}

func TestMirrorApplyResultCompletesAttempt(t *testing.T) {
	m := loaded(t, "u2")
	m.Apply(started(1, 1))
	m.Apply(filled(2, 0, true, false))

	matched := true
	score := 5
	m.ApplyResult(domain.SubmitResult{TurnID: "t1", Attempt: 0, Accepted: true, Matched: &matched, Score: &score, OpposingWord: "steam", TurnClosed: true}, "Steam")
	view := m.View()
	if len(view.History) != 1 || view.TotalScore != 5 {
		t.Fatalf("expected closed turn worth 5, got %+v", view)
	}
	if got := view.History[0].Attempts[0]; got.WordA != "steam" || got.WordB != "Steam" {
		t.Fatalf("expected words in slot order, got %+v", got)
	}

	if m.Apply(completed(3, 0, "steam", "Steam", &score)) {
		t.Fatalf("event for an already applied result must be a no-op")
	}
	if m.Gap() || m.Cursor() != 3 {
		t.Fatalf("expected cursor 3 without gap, got gap=%v cursor=%d", m.Gap(), m.Cursor())
	}
}

func TestMirrorStateIgnoresPartnerSlot(t *testing.T) {
	m := loaded(t, "u2")
	m.Apply(started(1, 1))
	m.Apply(filled(2, 0, true, false))
	if m.State() != YourMove {
		t.Fatalf("partner fill on the first attempt must leave your move, got %s", m.State())
	}
	if v := m.View(); !v.OpenTurn.Attempts[0].FilledA || v.OpenTurn.Attempts[0].FilledB {
		t.Fatalf("expected only the partner slot filled, got %+v", v.OpenTurn.Attempts[0])
	}

	m.Apply(completed(3, 0, "Element", "Steam", nil))
	m.Apply(filled(4, 1, true, false))
	if m.State() != YourMoveAfterMismatch {
		t.Fatalf("expected your move after mismatch, got %s", m.State())
	}
}
