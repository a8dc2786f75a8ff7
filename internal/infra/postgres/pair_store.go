package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"

	"wavelink-service/internal/domain"
)

// PairLoader loads the word pair catalog from Postgres.
type PairLoader struct {
	pool *pgxpool.Pool
}

func NewPairLoader(pool *pgxpool.Pool) *PairLoader {
	return &PairLoader{pool: pool}
}

func (l *PairLoader) LoadPairs(ctx context.Context) ([]domain.WordPair, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, word1, word2, easy FROM word_pairs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}
	defer rows.Close()

	pairs := []domain.WordPair{}
	for rows.Next() {
		var p domain.WordPair
		if err := rows.Scan(&p.ID, &p.Word1, &p.Word2, &p.Easy); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}
	return pairs, nil
}

// WordPairRow is the bun model of the word_pairs table.
type WordPairRow struct {
	bun.BaseModel `bun:"table:word_pairs"`

	ID    string `bun:"id,pk"`
	Word1 string `bun:"word1,notnull"`
	Word2 string `bun:"word2,notnull"`
	Easy  bool   `bun:"easy,notnull"`
}

// SeedPairs inserts catalog entries, leaving existing ids untouched. It
// returns the number of rows inserted.
func SeedPairs(ctx context.Context, db bun.IDB, pairs []domain.WordPair) (int64, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	rows := make([]WordPairRow, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, WordPairRow{ID: p.ID, Word1: p.Word1, Word2: p.Word2, Easy: p.Easy})
	}
	res, err := db.NewInsert().Model(&rows).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed pairs: %w", err)
	}
	return res.RowsAffected()
}
