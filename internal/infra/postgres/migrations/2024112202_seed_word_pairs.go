package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"wavelink-service/internal/infra/postgres"
	"wavelink-service/internal/wordpair"
)

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := postgres.SeedPairs(ctx, db, wordpair.DefaultCatalog())
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDelete().Model((*postgres.WordPairRow)(nil)).Where("1 = 1").Exec(ctx)
			return err
		},
	)
}
