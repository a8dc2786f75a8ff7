package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"wavelink-service/internal/config"
	"wavelink-service/internal/domain"
	"wavelink-service/internal/infra/postgres"
	"wavelink-service/internal/wordpair"
)

// NewSeedCmd loads a YAML word pair catalog into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert word pairs into the catalog table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Catalog.File
			}
			pairs, err := loadCatalog(file)
			if err != nil {
				return err
			}

			db, err := openBun(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := postgres.SeedPairs(cmd.Context(), db, pairs)
			if err != nil {
				return err
			}
			log.Info().Int64("inserted", n).Int("pairs", len(pairs)).Msg("catalog seeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML catalog to load (defaults to the embedded catalog)")
	return cmd
}

// loadCatalog reads a YAML catalog file, or returns the embedded one.
func loadCatalog(path string) ([]domain.WordPair, error) {
	if path == "" {
		return wordpair.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return wordpair.ParseCatalog(data)
}
