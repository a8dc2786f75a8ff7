package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wavelink-service/internal/domain"
	"wavelink-service/internal/matching"
	"wavelink-service/internal/standin"
	"wavelink-service/internal/wordpair"
)

// GameRepository abstracts where games and turns are stored (in-memory, Postgres).
type GameRepository interface {
	GetOrCreateGame(ctx context.Context, game domain.Game) (domain.Game, error)
	GetGame(ctx context.Context, gameID string) (domain.Game, error)
	ListGames(ctx context.Context, participantID string) ([]domain.Game, error)
	GetTurn(ctx context.Context, turnID string) (domain.Turn, error)
	ListTurns(ctx context.Context, gameID string) ([]domain.Turn, error)
	// InGame runs fn atomically: calls for the same game are serialized and
	// nothing fn wrote is kept when it returns an error.
	InGame(ctx context.Context, gameID string, fn func(TurnStore) error) error
}

// TurnStore mutates the turns of one game inside InGame.
type TurnStore interface {
	OpenTurn(ctx context.Context) (domain.Turn, bool, error)
	Turn(ctx context.Context, turnID string) (domain.Turn, error)
	Turns(ctx context.Context) ([]domain.Turn, error)
	ClosedTurnPairIDs(ctx context.Context) ([]string, error)
	CreateTurn(ctx context.Context, pair domain.WordPair) (domain.Turn, error)
	CreateSubmission(ctx context.Context, turnID string, attempt int) (domain.Submission, error)
	WriteSlot(ctx context.Context, turnID string, attempt int, slot domain.Slot, word string) error
	CompleteSubmission(ctx context.Context, turnID string, attempt int) error
	CloseTurn(ctx context.Context, turnID string, score int, matched bool) error
}

// PairCatalog lists the seed word pairs (cached in memory or Redis).
type PairCatalog interface {
	ListPairs(ctx context.Context, filter domain.PairFilter) ([]domain.WordPair, error)
}

// ChangeFeed stores change events for pull and publishes them per game.
type ChangeFeed interface {
	Append(ctx context.Context, ev domain.ChangeEvent) (domain.ChangeEvent, error)
	Subscribe(ctx context.Context, gameID string) (<-chan domain.ChangeEvent, func(), error)
	Since(ctx context.Context, gameID string, cursor uint64) ([]domain.ChangeEvent, error)
	Head(ctx context.Context, gameID string) (uint64, error)
}

// StandIn proposes the automated partner's word.
type StandIn interface {
	Propose(ctx context.Context, p standin.Prompt) (string, error)
}

// GameService contains the turn engine use cases.
type GameService struct {
	games   GameRepository
	catalog PairCatalog
	feed    ChangeFeed
	standIn StandIn
	pairs   *wordpair.Allocator
	now     func() time.Time
	newID   func() string
}

// Option customizes a GameService.
type Option func(*GameService)

// WithStandIn enables games against the automated partner.
func WithStandIn(s StandIn) Option {
	return func(g *GameService) { g.standIn = s }
}

// WithAllocator replaces the random pair allocator (tests).
func WithAllocator(a *wordpair.Allocator) Option {
	return func(g *GameService) { g.pairs = a }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *GameService) { g.now = now }
}

func NewGameService(games GameRepository, catalog PairCatalog, feed ChangeFeed, opts ...Option) *GameService {
	s := &GameService{
		games:   games,
		catalog: catalog,
		feed:    feed,
		pairs:   wordpair.NewAllocator(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenGame returns the game between two participants, creating it on first contact.
func (s *GameService) OpenGame(ctx context.Context, p1, p2 domain.Participant) (domain.Game, error) {
	game, err := domain.NewGame(s.newID(), p1, p2, s.now())
	if err != nil {
		return domain.Game{}, err
	}
	if game.HasAI() && s.standIn == nil {
		return domain.Game{}, domain.ErrStandInUnavailable
	}
	return s.games.GetOrCreateGame(ctx, game)
}

// StartTurn returns the open turn of a game or allocates a new one.
func (s *GameService) StartTurn(ctx context.Context, gameID string) (domain.Turn, error) {
	var (
		turn    domain.Turn
		created bool
	)
	err := s.games.InGame(ctx, gameID, func(tx TurnStore) error {
		open, ok, err := tx.OpenTurn(ctx)
		if err != nil {
			return err
		}
		if ok {
			turn = open
			return nil
		}

		usedIDs, err := tx.ClosedTurnPairIDs(ctx)
		if err != nil {
			return err
		}
		used := make(map[string]struct{}, len(usedIDs))
		for _, id := range usedIDs {
			used[id] = struct{}{}
		}
		first := len(usedIDs) == 0

		pairs, err := s.catalog.ListPairs(ctx, domain.PairFilter{EasyOnly: first})
		if err != nil {
			return err
		}
		pair, err := s.pairs.Pick(pairs, used, first)
		if err != nil {
			return err
		}

		turn, err = tx.CreateTurn(ctx, pair)
		if err != nil {
			return err
		}
		sub, err := tx.CreateSubmission(ctx, turn.ID, 0)
		if err != nil {
			return err
		}
		turn.Submissions = []domain.Submission{sub}
		created = true
		return nil
	})
	if err != nil {
		return domain.Turn{}, err
	}
	if created {
		s.publish(ctx, domain.NewTurnStarted(turn, s.now()))
	}
	return turn, nil
}

// SubmitWord fills the participant's slot of the active attempt and, when the
// opposing slot is already filled, scores the attempt.
func (s *GameService) SubmitWord(ctx context.Context, turnID, participantID, word string) (domain.SubmitResult, error) {
	current, err := s.games.GetTurn(ctx, turnID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	game, err := s.games.GetGame(ctx, current.GameID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	slot, err := game.SlotOf(participantID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	cleaned := matching.Clean(word)

	var (
		result domain.SubmitResult
		change domain.ChangeEvent
	)
	err = s.games.InGame(ctx, game.ID, func(tx TurnStore) error {
		turn, err := tx.Turn(ctx, turnID)
		if err != nil {
			return err
		}
		active, ok := turn.Active()
		if !ok {
			return domain.ErrNoOpenTurn
		}
		if active.Filled(slot) {
			return domain.ErrSlotFilled
		}
		if err := matching.Validate(cleaned, turn.Seeds(), turn.PriorWords()); err != nil {
			return err
		}

		opposing := active.Word(slot.Other())
		if opposing == nil && game.HasAI() {
			aiWord, err := s.proposeStandIn(ctx, tx, turn)
			if err != nil {
				return err
			}
			if err := tx.WriteSlot(ctx, turn.ID, active.Attempt, slot.Other(), aiWord); err != nil {
				return err
			}
			opposing = &aiWord
		}
		if err := tx.WriteSlot(ctx, turn.ID, active.Attempt, slot, cleaned); err != nil {
			return err
		}
		result = domain.SubmitResult{TurnID: turn.ID, Attempt: active.Attempt, Accepted: true}

		if opposing != nil {
			outcome := matching.Evaluate(cleaned, *opposing, active.Attempt)
			if err := s.applyOutcome(ctx, tx, turn.ID, active.Attempt, outcome); err != nil {
				return err
			}
			matched := outcome.Matched
			result.Matched = &matched
			result.OpposingWord = *opposing
			if outcome.Closes() {
				score := outcome.Score
				result.Score = &score
				result.TurnClosed = true
			}
		}

		updated, err := tx.Turn(ctx, turn.ID)
		if err != nil {
			return err
		}
		change = domain.NewSubmissionChange(updated, updated.Submissions[active.Attempt], s.now())
		return nil
	})
	if err != nil {
		return domain.SubmitResult{}, err
	}
	s.publish(ctx, change)
	return result, nil
}

func (s *GameService) applyOutcome(ctx context.Context, tx TurnStore, turnID string, attempt int, outcome matching.Result) error {
	if err := tx.CompleteSubmission(ctx, turnID, attempt); err != nil {
		return err
	}
	if outcome.Closes() {
		return tx.CloseTurn(ctx, turnID, outcome.Score, outcome.Matched)
	}
	_, err := tx.CreateSubmission(ctx, turnID, attempt+1)
	return err
}

func (s *GameService) proposeStandIn(ctx context.Context, tx TurnStore, turn domain.Turn) (string, error) {
	if s.standIn == nil {
		return "", domain.ErrStandInUnavailable
	}
	turns, err := tx.Turns(ctx)
	if err != nil {
		return "", err
	}
	seeds := turn.Seeds()
	forbidden := []string{seeds[0], seeds[1]}
	for _, t := range turns {
		for _, sub := range t.Submissions {
			for _, w := range []*string{sub.WordA, sub.WordB} {
				if w != nil {
					forbidden = append(forbidden, *w)
				}
			}
		}
	}

	word, err := s.standIn.Propose(ctx, standin.Prompt{
		Seeds:      seeds,
		Connecting: turn.Connecting(),
		Forbidden:  forbidden,
	})
	if err != nil {
		log.Warn().Err(err).Str("turnId", turn.ID).Msg("stand-in proposal failed")
		if errors.Is(err, domain.ErrStandInUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrStandInUnavailable, err)
	}
	return word, nil
}

// Snapshot returns the authoritative state a client projection is rebuilt from.
func (s *GameService) Snapshot(ctx context.Context, gameID string) (domain.GameState, error) {
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return domain.GameState{}, err
	}
	// Read the cursor first: anything newer is replayed harmlessly.
	cursor, err := s.feed.Head(ctx, gameID)
	if err != nil {
		return domain.GameState{}, err
	}
	turns, err := s.games.ListTurns(ctx, gameID)
	if err != nil {
		return domain.GameState{}, err
	}

	state := domain.GameState{Game: game, ClosedTurns: []domain.Turn{}, Cursor: cursor}
	for i := range turns {
		t := turns[i]
		if t.Open() {
			state.OpenTurn = &t
			continue
		}
		state.ClosedTurns = append(state.ClosedTurns, t)
		if t.Score != nil {
			state.TotalScore += *t.Score
		}
	}
	return state, nil
}

// ListGames returns every game a participant plays.
func (s *GameService) ListGames(ctx context.Context, participantID string) ([]domain.Game, error) {
	return s.games.ListGames(ctx, participantID)
}

// AwaitingGames lists the games against another human where participantID
// owes a move: an open turn with their slot empty, or no open turn at all.
func (s *GameService) AwaitingGames(ctx context.Context, participantID string) ([]domain.Game, error) {
	games, err := s.games.ListGames(ctx, participantID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Game, 0, len(games))
	for _, g := range games {
		if g.HasAI() {
			continue
		}
		slot, err := g.SlotOf(participantID)
		if err != nil {
			continue
		}
		turns, err := s.games.ListTurns(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		awaiting := true
		for _, t := range turns {
			if active, ok := t.Active(); ok && active.Filled(slot) {
				awaiting = false
			}
		}
		if awaiting {
			out = append(out, g)
		}
	}
	return out, nil
}

// Subscribe returns a channel that receives change events for a game.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context, gameID string) (<-chan domain.ChangeEvent, func(), error) {
	if _, err := s.games.GetGame(ctx, gameID); err != nil {
		return nil, nil, err
	}
	return s.feed.Subscribe(ctx, gameID)
}

// PollChanges returns the events of a game newer than cursor.
func (s *GameService) PollChanges(ctx context.Context, gameID string, cursor uint64) ([]domain.ChangeEvent, error) {
	if _, err := s.games.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.feed.Since(ctx, gameID, cursor)
}

// publish is fire-and-forget: subscribers that miss an event catch up by polling.
func (s *GameService) publish(ctx context.Context, ev domain.ChangeEvent) {
	if _, err := s.feed.Append(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn().Err(err).Str("gameId", ev.GameID).Str("turnId", ev.TurnID).Int("attempt", ev.Attempt).Msg("publish change")
	}
}
