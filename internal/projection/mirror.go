// Package projection keeps a player-relative local mirror of a game that is
// fed by snapshots, pushed change events, and pulled catch-up batches.
package projection

import (
	"sort"
	"sync"

	"wavelink-service/internal/domain"
)

// ViewState is what the local player should be doing.
type ViewState string

const (
	NoOpenTurn            ViewState = "noOpenTurn"
	YourMove              ViewState = "yourMove"
	YourMoveAfterMismatch ViewState = "yourMoveAfterMismatch"
	Composing             ViewState = "composing"
	WaitingOnPartner      ViewState = "waitingOnPartner"
)

// AttemptView is one attempt as the local player may see it. Partner words
// stay empty until the attempt completes.
type AttemptView struct {
	Attempt  int
	FilledA  bool
	FilledB  bool
	WordA    string
	WordB    string
	Complete bool
}

func (a AttemptView) filled(slot domain.Slot) bool {
	if slot == domain.SlotA {
		return a.FilledA
	}
	return a.FilledB
}

// TurnView is a turn of the mirror.
type TurnView struct {
	ID       string
	Seq      int
	Word1    string
	Word2    string
	Attempts []AttemptView
	Closed   bool
	Matched  bool
	Score    *int
}

func (t TurnView) clone() TurnView {
	out := t
	out.Attempts = append([]AttemptView(nil), t.Attempts...)
	if t.Score != nil {
		s := *t.Score
		out.Score = &s
	}
	return out
}

func (t *TurnView) active() *AttemptView {
	return &t.Attempts[len(t.Attempts)-1]
}

// View is an immutable copy of the mirror handed to renderers.
type View struct {
	State      ViewState
	Slot       domain.Slot
	Game       domain.Game
	OpenTurn   *TurnView
	History    []TurnView
	TotalScore int
	Cursor     uint64
}

// Mirror applies changes idempotently and in version order. Events that
// arrive ahead of a missing predecessor are buffered until it shows up.
type Mirror struct {
	participantID string

	mu        sync.Mutex
	loaded    bool
	game      domain.Game
	slot      domain.Slot
	history   []TurnView
	open      *TurnView
	total     int
	composing bool

	cursor  uint64
	seen    map[uint64]struct{}
	pending map[uint64]domain.ChangeEvent
}

func NewMirror(participantID string) *Mirror {
	return &Mirror{
		participantID: participantID,
		seen:          make(map[uint64]struct{}),
		pending:       make(map[uint64]domain.ChangeEvent),
	}
}

// Load replaces the mirror with an authoritative snapshot. Buffered events
// are re-evaluated against it.
func (m *Mirror) Load(state domain.GameState) error {
	slot, err := state.Game.SlotOf(m.participantID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.loaded = true
	m.game = state.Game
	m.slot = slot
	m.history = make([]TurnView, 0, len(state.ClosedTurns))
	m.total = 0
	for _, t := range state.ClosedTurns {
		m.history = append(m.history, m.turnView(t))
		if t.Score != nil {
			m.total += *t.Score
		}
	}
	m.open = nil
	if state.OpenTurn != nil {
		v := m.turnView(*state.OpenTurn)
		m.open = &v
	}
	m.composing = false
	m.cursor = state.Cursor
	m.seen = make(map[uint64]struct{})
	m.drain()
	return nil
}

func (m *Mirror) turnView(t domain.Turn) TurnView {
	v := TurnView{
		ID:       t.ID,
		Seq:      t.Seq,
		Word1:    t.Pair.Word1,
		Word2:    t.Pair.Word2,
		Attempts: make([]AttemptView, 0, len(t.Submissions)),
		Closed:   !t.Open(),
		Matched:  t.Matched,
	}
	if t.Score != nil {
		s := *t.Score
		v.Score = &s
	}
	for _, s := range t.Submissions {
		a := AttemptView{Attempt: s.Attempt, FilledA: s.Filled(domain.SlotA), FilledB: s.Filled(domain.SlotB), Complete: s.Complete()}
		if w := s.Word(domain.SlotA); w != nil && (a.Complete || m.slot == domain.SlotA) {
			a.WordA = *w
		}
		if w := s.Word(domain.SlotB); w != nil && (a.Complete || m.slot == domain.SlotB) {
			a.WordB = *w
		}
		v.Attempts = append(v.Attempts, a)
	}
	if len(v.Attempts) == 0 && !v.Closed {
		v.Attempts = append(v.Attempts, AttemptView{})
	}
	return v
}

// Apply merges a change event. It reports whether the mirror changed.
func (m *Mirror) Apply(ev domain.ChangeEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		m.pending[ev.Seq] = ev
		return false
	}
	changed := m.merge(ev)
	if changed {
		m.drain()
	}
	return changed
}

// ApplyBatch merges a pulled batch in any order.
func (m *Mirror) ApplyBatch(events []domain.ChangeEvent) bool {
	changed := false
	for _, ev := range events {
		if m.Apply(ev) {
			changed = true
		}
	}
	return changed
}

type disposition int

const (
	stale disposition = iota
	ready
	future
)

func (m *Mirror) merge(ev domain.ChangeEvent) bool {
	m.markSeen(ev.Seq)
	switch m.classify(ev) {
	case stale:
		return false
	case future:
		m.pending[ev.Seq] = ev
		return false
	}
	m.apply(ev)
	return true
}

func (m *Mirror) drain() {
	for {
		keys := make([]uint64, 0, len(m.pending))
		for k := range m.pending {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return m.pending[keys[i]].Version().Less(m.pending[keys[j]].Version())
		})

		progressed := false
		for _, k := range keys {
			ev := m.pending[k]
			switch m.classify(ev) {
			case stale:
				delete(m.pending, k)
				m.markSeen(ev.Seq)
			case ready:
				delete(m.pending, k)
				m.markSeen(ev.Seq)
				m.apply(ev)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (m *Mirror) lastSeq() int {
	if len(m.history) == 0 {
		return 0
	}
	return m.history[len(m.history)-1].Seq
}

func (m *Mirror) classify(ev domain.ChangeEvent) disposition {
	if m.open == nil {
		last := m.lastSeq()
		switch {
		case ev.TurnSeq <= last:
			return stale
		case ev.TurnSeq == last+1 && ev.Attempt == 0:
			// A missed turnStarted is recoverable: every event names its turn and seeds.
			return ready
		}
		return future
	}

	switch {
	case ev.TurnSeq < m.open.Seq:
		return stale
	case ev.TurnSeq > m.open.Seq:
		return future
	case ev.Kind == domain.ChangeTurnStarted:
		return stale
	}
	active := m.open.active()
	switch {
	case ev.Attempt < active.Attempt:
		return stale
	case ev.Attempt > active.Attempt:
		return future
	case ev.Kind == domain.ChangeAttemptCompleted:
		return ready
	case (ev.FilledA && !active.FilledA) || (ev.FilledB && !active.FilledB):
		return ready
	}
	return stale
}

func (m *Mirror) apply(ev domain.ChangeEvent) {
	if m.open == nil {
		m.open = &TurnView{
			ID:       ev.TurnID,
			Seq:      ev.TurnSeq,
			Word1:    ev.Word1,
			Word2:    ev.Word2,
			Attempts: []AttemptView{{Attempt: 0}},
		}
	}
	m.composing = false
	if ev.Kind == domain.ChangeTurnStarted {
		return
	}

	active := m.open.active()
	if ev.Kind == domain.ChangeSlotFilled {
		active.FilledA = active.FilledA || ev.FilledA
		active.FilledB = active.FilledB || ev.FilledB
		return
	}
	m.complete(ev.WordA, ev.WordB, ev.TurnClosed, ev.Matched, ev.Score)
}

func (m *Mirror) complete(wordA, wordB string, closed, matched bool, score *int) {
	active := m.open.active()
	active.FilledA, active.FilledB = true, true
	active.WordA, active.WordB = wordA, wordB
	active.Complete = true
	if !closed {
		m.open.Attempts = append(m.open.Attempts, AttemptView{Attempt: active.Attempt + 1})
		return
	}
	m.open.Closed = true
	m.open.Matched = matched
	if score != nil {
		s := *score
		m.open.Score = &s
		m.total += s
	}
	m.history = append(m.history, *m.open)
	m.open = nil
}

// ApplyResult merges the reply to the local player's own submission.
func (m *Mirror) ApplyResult(res domain.SubmitResult, word string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open == nil || m.open.ID != res.TurnID || !res.Accepted {
		return false
	}
	active := m.open.active()
	if active.Attempt != res.Attempt || active.Complete {
		return false
	}
	m.composing = false
	if res.Matched == nil {
		if m.slot == domain.SlotA {
			active.FilledA, active.WordA = true, word
		} else {
			active.FilledB, active.WordB = true, word
		}
		m.drain()
		return true
	}
	wordA, wordB := word, res.OpposingWord
	if m.slot == domain.SlotB {
		wordA, wordB = wordB, wordA
	}
	m.complete(wordA, wordB, res.TurnClosed, *res.Matched, res.Score)
	m.drain()
	return true
}

func (m *Mirror) markSeen(seq uint64) {
	if seq == 0 || seq <= m.cursor {
		return
	}
	m.seen[seq] = struct{}{}
	for {
		if _, ok := m.seen[m.cursor+1]; !ok {
			return
		}
		delete(m.seen, m.cursor+1)
		m.cursor++
	}
}

// Cursor is the pull watermark: every event up to it has been received.
func (m *Mirror) Cursor() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Gap reports whether catch-up is needed before the mirror is current.
func (m *Mirror) Gap() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.loaded || len(m.pending) > 0 || len(m.seen) > 0
}

// BeginComposing marks the local player as typing a word. It is a no-op
// unless it is their move.
func (m *Mirror) BeginComposing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.stateLocked() {
	case YourMove, YourMoveAfterMismatch:
		m.composing = true
		return true
	}
	return false
}

// Resume leaves the composing state without submitting.
func (m *Mirror) Resume() {
	m.mu.Lock()
	m.composing = false
	m.mu.Unlock()
}

// State derives the local player's view state.
func (m *Mirror) State() ViewState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Mirror) stateLocked() ViewState {
	if m.open == nil {
		return NoOpenTurn
	}
	active := m.open.active()
	switch {
	case active.filled(m.slot):
		return WaitingOnPartner
	case m.composing:
		return Composing
	case active.Attempt > 0:
		return YourMoveAfterMismatch
	}
	return YourMove
}

// View returns a deep copy of the mirror.
func (m *Mirror) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{
		State:      m.stateLocked(),
		Slot:       m.slot,
		Game:       m.game,
		History:    make([]TurnView, 0, len(m.history)),
		TotalScore: m.total,
		Cursor:     m.cursor,
	}
	for _, t := range m.history {
		v.History = append(v.History, t.clone())
	}
	if m.open != nil {
		open := m.open.clone()
		v.OpenTurn = &open
	}
	return v
}
