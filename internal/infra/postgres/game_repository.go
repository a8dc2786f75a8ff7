package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"wavelink-service/internal/app"
	"wavelink-service/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const (
	gameColumns = `id, participant_a_id, participant_a_name, participant_b_id, participant_b_name, participant_b_ai, created_at`
	turnColumns = `id, game_id, seq, pair_id, word1, word2, easy, created_at, completed_at, score, matched`
)

// GameRepository stores games, turns, and submissions in Postgres. InGame
// serializes writers with a row lock on the game.
type GameRepository struct {
	pool  *pgxpool.Pool
	now   func() time.Time
	newID func() string
}

func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool, now: time.Now, newID: uuid.NewString}
}

func (r *GameRepository) GetOrCreateGame(ctx context.Context, game domain.Game) (domain.Game, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO games (id, pair_key, participant_a_id, participant_a_name, participant_b_id, participant_b_name, participant_b_ai, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pair_key) DO NOTHING`,
		game.ID, game.PairKey(), game.A.ID, game.A.DisplayName, game.B.ID, game.B.DisplayName, game.B.AI, game.CreatedAt,
	)
	if err != nil {
		return domain.Game{}, fmt.Errorf("insert game: %w", err)
	}
	row := r.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE pair_key=$1`, game.PairKey())
	return scanGame(row)
}

func (r *GameRepository) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	return getGame(ctx, r.pool, gameID)
}

func (r *GameRepository) ListGames(ctx context.Context, participantID string) ([]domain.Game, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE participant_a_id=$1 OR (participant_b_id=$1 AND NOT participant_b_ai)
		ORDER BY created_at, id`, participantID)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := []domain.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (r *GameRepository) GetTurn(ctx context.Context, turnID string) (domain.Turn, error) {
	turns, err := loadTurns(ctx, r.pool, `WHERE id=$1`, turnID)
	if err != nil {
		return domain.Turn{}, err
	}
	if len(turns) == 0 {
		return domain.Turn{}, domain.ErrTurnNotFound
	}
	return turns[0], nil
}

func (r *GameRepository) ListTurns(ctx context.Context, gameID string) ([]domain.Turn, error) {
	if _, err := getGame(ctx, r.pool, gameID); err != nil {
		return nil, err
	}
	return loadTurns(ctx, r.pool, `WHERE game_id=$1`, gameID)
}

func (r *GameRepository) InGame(ctx context.Context, gameID string, fn func(app.TurnStore) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM games WHERE id=$1 FOR UPDATE`, gameID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrGameNotFound
	}
	if err != nil {
		return fmt.Errorf("lock game: %w", err)
	}

	if err := fn(&turnStore{tx: tx, gameID: gameID, now: r.now, newID: r.newID}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getGame(ctx context.Context, q querier, gameID string) (domain.Game, error) {
	return scanGame(q.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id=$1`, gameID))
}

func scanGame(row pgx.Row) (domain.Game, error) {
	var g domain.Game
	err := row.Scan(&g.ID, &g.A.ID, &g.A.DisplayName, &g.B.ID, &g.B.DisplayName, &g.B.AI, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("scan game: %w", err)
	}
	return g, nil
}

// loadTurns reads turns matching where, ordered by seq, with their submissions.
func loadTurns(ctx context.Context, q querier, where string, args ...interface{}) ([]domain.Turn, error) {
	rows, err := q.Query(ctx, `SELECT `+turnColumns+` FROM turns `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	turns := []domain.Turn{}
	index := map[string]int{}
	for rows.Next() {
		var (
			t     domain.Turn
			score *int32
		)
		if err := rows.Scan(&t.ID, &t.GameID, &t.Seq, &t.Pair.ID, &t.Pair.Word1, &t.Pair.Word2, &t.Pair.Easy,
			&t.CreatedAt, &t.CompletedAt, &score, &t.Matched); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if score != nil {
			s := int(*score)
			t.Score = &s
		}
		t.Submissions = []domain.Submission{}
		index[t.ID] = len(turns)
		turns = append(turns, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	if len(turns) == 0 {
		return turns, nil
	}

	ids := make([]string, 0, len(turns))
	for _, t := range turns {
		ids = append(ids, t.ID)
	}
	subRows, err := q.Query(ctx, `
		SELECT turn_id, attempt, word_a, word_b, created_at, completed_at
		FROM submissions WHERE turn_id = ANY($1) ORDER BY turn_id, attempt`, ids)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	defer subRows.Close()
	for subRows.Next() {
		var (
			turnID string
			s      domain.Submission
		)
		if err := subRows.Scan(&turnID, &s.Attempt, &s.WordA, &s.WordB, &s.CreatedAt, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		i := index[turnID]
		turns[i].Submissions = append(turns[i].Submissions, s)
	}
	return turns, subRows.Err()
}

// turnStore runs TurnStore operations inside the InGame transaction.
type turnStore struct {
	tx     pgx.Tx
	gameID string
	now    func() time.Time
	newID  func() string
}

func (s *turnStore) OpenTurn(ctx context.Context) (domain.Turn, bool, error) {
	turns, err := loadTurns(ctx, s.tx, `WHERE game_id=$1 AND completed_at IS NULL`, s.gameID)
	if err != nil || len(turns) == 0 {
		return domain.Turn{}, false, err
	}
	return turns[0], true, nil
}

func (s *turnStore) Turn(ctx context.Context, turnID string) (domain.Turn, error) {
	turns, err := loadTurns(ctx, s.tx, `WHERE game_id=$1 AND id=$2`, s.gameID, turnID)
	if err != nil {
		return domain.Turn{}, err
	}
	if len(turns) == 0 {
		return domain.Turn{}, domain.ErrTurnNotFound
	}
	return turns[0], nil
}

func (s *turnStore) Turns(ctx context.Context) ([]domain.Turn, error) {
	return loadTurns(ctx, s.tx, `WHERE game_id=$1`, s.gameID)
}

func (s *turnStore) ClosedTurnPairIDs(ctx context.Context) ([]string, error) {
	rows, err := s.tx.Query(ctx, `SELECT pair_id FROM turns WHERE game_id=$1 AND completed_at IS NOT NULL`, s.gameID)
	if err != nil {
		return nil, fmt.Errorf("closed pairs: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pair id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *turnStore) CreateTurn(ctx context.Context, pair domain.WordPair) (domain.Turn, error) {
	t := domain.Turn{
		ID:          s.newID(),
		GameID:      s.gameID,
		Pair:        pair,
		CreatedAt:   s.now(),
		Submissions: []domain.Submission{},
	}
	err := s.tx.QueryRow(ctx, `
		INSERT INTO turns (id, game_id, seq, pair_id, word1, word2, easy, created_at)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6, $7 FROM turns WHERE game_id=$2
		RETURNING seq`,
		t.ID, t.GameID, pair.ID, pair.Word1, pair.Word2, pair.Easy, t.CreatedAt,
	).Scan(&t.Seq)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("create turn: %w", err)
	}
	return t, nil
}

func (s *turnStore) CreateSubmission(ctx context.Context, turnID string, attempt int) (domain.Submission, error) {
	var (
		count    int
		complete *bool
	)
	err := s.tx.QueryRow(ctx, `
		SELECT COUNT(*), BOOL_AND(completed_at IS NOT NULL) FROM submissions WHERE turn_id=$1`, turnID,
	).Scan(&count, &complete)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("count submissions: %w", err)
	}
	if attempt != count || attempt > domain.MaxAttempt {
		return domain.Submission{}, fmt.Errorf("turn %s cannot open attempt %d", turnID, attempt)
	}
	if count > 0 && (complete == nil || !*complete) {
		return domain.Submission{}, fmt.Errorf("turn %s attempt %d still active", turnID, count-1)
	}

	sub := domain.Submission{Attempt: attempt, CreatedAt: s.now()}
	if _, err := s.tx.Exec(ctx, `INSERT INTO submissions (turn_id, attempt, created_at) VALUES ($1, $2, $3)`,
		turnID, attempt, sub.CreatedAt); err != nil {
		return domain.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	return sub, nil
}

func (s *turnStore) WriteSlot(ctx context.Context, turnID string, attempt int, slot domain.Slot, word string) error {
	query := `UPDATE submissions SET word_a=$3 WHERE turn_id=$1 AND attempt=$2 AND word_a IS NULL`
	if slot == domain.SlotB {
		query = `UPDATE submissions SET word_b=$3 WHERE turn_id=$1 AND attempt=$2 AND word_b IS NULL`
	}
	tag, err := s.tx.Exec(ctx, query, turnID, attempt, word)
	if err != nil {
		return fmt.Errorf("write slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM submissions WHERE turn_id=$1 AND attempt=$2)`,
		turnID, attempt).Scan(&exists); err != nil {
		return fmt.Errorf("write slot: %w", err)
	}
	if exists {
		return domain.ErrSlotFilled
	}
	return fmt.Errorf("turn %s has no attempt %d", turnID, attempt)
}

func (s *turnStore) CompleteSubmission(ctx context.Context, turnID string, attempt int) error {
	tag, err := s.tx.Exec(ctx, `UPDATE submissions SET completed_at=$3 WHERE turn_id=$1 AND attempt=$2`,
		turnID, attempt, s.now())
	if err != nil {
		return fmt.Errorf("complete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("turn %s has no attempt %d", turnID, attempt)
	}
	return nil
}

func (s *turnStore) CloseTurn(ctx context.Context, turnID string, score int, matched bool) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE turns SET completed_at=$3, score=$4, matched=$5
		WHERE id=$1 AND game_id=$2 AND completed_at IS NULL`,
		turnID, s.gameID, s.now(), score, matched)
	if err != nil {
		return fmt.Errorf("close turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoOpenTurn
	}
	return nil
}
