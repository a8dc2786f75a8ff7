package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wavelink-service/internal/app"
	"wavelink-service/internal/domain"
)

// GameRepository is an in-memory implementation of app.GameRepository.
// Writes inside InGame go to a copy of the game's turns that replaces the
// stored slice only when the callback succeeds.
type GameRepository struct {
	clock func() time.Time
	newID func() string

	mu       sync.RWMutex
	games    map[string]domain.Game
	byPair   map[string]string
	turns    map[string][]domain.Turn
	turnGame map[string]string
	locks    map[string]*sync.Mutex
}

func NewGameRepository() *GameRepository {
	return NewGameRepositoryWithClock(time.Now)
}

// NewGameRepositoryWithClock allows deterministic timestamps in tests.
func NewGameRepositoryWithClock(now func() time.Time) *GameRepository {
	return &GameRepository{
		clock:    now,
		newID:    uuid.NewString,
		games:    make(map[string]domain.Game),
		byPair:   make(map[string]string),
		turns:    make(map[string][]domain.Turn),
		turnGame: make(map[string]string),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *GameRepository) GetOrCreateGame(_ context.Context, game domain.Game) (domain.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := game.PairKey()
	if id, ok := r.byPair[key]; ok {
		return r.games[id], nil
	}
	r.games[game.ID] = game
	r.byPair[key] = game.ID
	r.locks[game.ID] = &sync.Mutex{}
	return game, nil
}

func (r *GameRepository) GetGame(_ context.Context, gameID string) (domain.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	game, ok := r.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return game, nil
}

func (r *GameRepository) ListGames(_ context.Context, participantID string) ([]domain.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Game{}
	for _, g := range r.games {
		if _, err := g.SlotOf(participantID); err == nil {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *GameRepository) GetTurn(_ context.Context, turnID string) (domain.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gameID, ok := r.turnGame[turnID]
	if !ok {
		return domain.Turn{}, domain.ErrTurnNotFound
	}
	for _, t := range r.turns[gameID] {
		if t.ID == turnID {
			return t.Clone(), nil
		}
	}
	return domain.Turn{}, domain.ErrTurnNotFound
}

func (r *GameRepository) ListTurns(_ context.Context, gameID string) ([]domain.Turn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.games[gameID]; !ok {
		return nil, domain.ErrGameNotFound
	}
	return cloneTurns(r.turns[gameID]), nil
}

func (r *GameRepository) InGame(ctx context.Context, gameID string, fn func(app.TurnStore) error) error {
	r.mu.RLock()
	lock, ok := r.locks[gameID]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrGameNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	tx := &turnStore{
		gameID: gameID,
		turns:  cloneTurns(r.turns[gameID]),
		now:    r.clock,
		newID:  r.newID,
	}
	r.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.turns[gameID] = tx.turns
	for _, t := range tx.turns {
		r.turnGame[t.ID] = gameID
	}
	r.mu.Unlock()
	return nil
}

func cloneTurns(turns []domain.Turn) []domain.Turn {
	out := make([]domain.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}

// turnStore is the transactional view handed to InGame callbacks.
type turnStore struct {
	gameID string
	turns  []domain.Turn
	now    func() time.Time
	newID  func() string
}

func (s *turnStore) find(turnID string) (*domain.Turn, error) {
	for i := range s.turns {
		if s.turns[i].ID == turnID {
			return &s.turns[i], nil
		}
	}
	return nil, domain.ErrTurnNotFound
}

func (s *turnStore) submission(turnID string, attempt int) (*domain.Submission, error) {
	t, err := s.find(turnID)
	if err != nil {
		return nil, err
	}
	if attempt < 0 || attempt >= len(t.Submissions) {
		return nil, fmt.Errorf("turn %s has no attempt %d", turnID, attempt)
	}
	return &t.Submissions[attempt], nil
}

func (s *turnStore) OpenTurn(_ context.Context) (domain.Turn, bool, error) {
	for _, t := range s.turns {
		if t.Open() {
			return t.Clone(), true, nil
		}
	}
	return domain.Turn{}, false, nil
}

func (s *turnStore) Turn(_ context.Context, turnID string) (domain.Turn, error) {
	t, err := s.find(turnID)
	if err != nil {
		return domain.Turn{}, err
	}
	return t.Clone(), nil
}

func (s *turnStore) Turns(_ context.Context) ([]domain.Turn, error) {
	return cloneTurns(s.turns), nil
}

func (s *turnStore) ClosedTurnPairIDs(_ context.Context) ([]string, error) {
	ids := []string{}
	for _, t := range s.turns {
		if !t.Open() {
			ids = append(ids, t.Pair.ID)
		}
	}
	return ids, nil
}

func (s *turnStore) CreateTurn(_ context.Context, pair domain.WordPair) (domain.Turn, error) {
	for _, t := range s.turns {
		if t.Open() {
			return domain.Turn{}, fmt.Errorf("game %s already has open turn %s", s.gameID, t.ID)
		}
	}
	t := domain.Turn{
		ID:          s.newID(),
		GameID:      s.gameID,
		Seq:         len(s.turns) + 1,
		Pair:        pair,
		CreatedAt:   s.now(),
		Submissions: []domain.Submission{},
	}
	s.turns = append(s.turns, t)
	return t.Clone(), nil
}

func (s *turnStore) CreateSubmission(_ context.Context, turnID string, attempt int) (domain.Submission, error) {
	t, err := s.find(turnID)
	if err != nil {
		return domain.Submission{}, err
	}
	if attempt != len(t.Submissions) || attempt > domain.MaxAttempt {
		return domain.Submission{}, fmt.Errorf("turn %s cannot open attempt %d", turnID, attempt)
	}
	if n := len(t.Submissions); n > 0 && !t.Submissions[n-1].Complete() {
		return domain.Submission{}, fmt.Errorf("turn %s attempt %d still active", turnID, n-1)
	}
	sub := domain.Submission{Attempt: attempt, CreatedAt: s.now()}
	t.Submissions = append(t.Submissions, sub)
	return sub, nil
}

func (s *turnStore) WriteSlot(_ context.Context, turnID string, attempt int, slot domain.Slot, word string) error {
	sub, err := s.submission(turnID, attempt)
	if err != nil {
		return err
	}
	if sub.Filled(slot) {
		return domain.ErrSlotFilled
	}
	w := word
	if slot == domain.SlotA {
		sub.WordA = &w
	} else {
		sub.WordB = &w
	}
	return nil
}

func (s *turnStore) CompleteSubmission(_ context.Context, turnID string, attempt int) error {
	sub, err := s.submission(turnID, attempt)
	if err != nil {
		return err
	}
	now := s.now()
	sub.CompletedAt = &now
	return nil
}

func (s *turnStore) CloseTurn(_ context.Context, turnID string, score int, matched bool) error {
	t, err := s.find(turnID)
	if err != nil {
		return err
	}
	if !t.Open() {
		return domain.ErrNoOpenTurn
	}
	now := s.now()
	t.CompletedAt = &now
	t.Score = &score
	t.Matched = matched
	return nil
}
