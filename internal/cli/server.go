package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"wavelink-service/internal/app"
	"wavelink-service/internal/config"
	"wavelink-service/internal/infra/memory"
	"wavelink-service/internal/infra/postgres"
	infraredis "wavelink-service/internal/infra/redis"
	"wavelink-service/internal/standin"
	transport "wavelink-service/internal/transport/http"
	"wavelink-service/internal/wordpair"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("log-level") {
				setLogLevel(cfg.Log.Level)
			}
			return runServer(cmd.Context(), cfg, *port)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string) error {
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var (
		loader memory.PairLoader
		games  app.GameRepository
	)
	if pool != nil {
		loader = postgres.NewPairLoader(pool)
		games = postgres.NewGameRepository(pool)
	} else {
		pairs, err := loadCatalog(cfg.Catalog.File)
		if err != nil {
			return err
		}
		loader = wordpair.NewStaticLoader(pairs)
		games = memory.NewGameRepository()
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var (
		catalog app.PairCatalog
		feed    app.ChangeFeed
	)
	if redisClient != nil {
		catalog = infraredis.NewPairCatalog(redisClient, loader, catalogTTL)
		feed = infraredis.NewChangeFeed(redisClient, redisTTL, cfg.Redis.Retention)
	} else {
		catalog = memory.NewPairCatalog(loader, catalogTTL)
		feed = memory.NewChangeFeed()
	}

	var opts []app.Option
	if cfg.StandIn.APIKey != "" {
		provider := standin.NewOpenAIProvider(standin.OpenAIConfig{
			APIKey:      cfg.StandIn.APIKey,
			BaseURL:     cfg.StandIn.BaseURL,
			Model:       cfg.StandIn.Model,
			Temperature: cfg.StandIn.Temperature,
		})
		timeout := config.TTLDuration(cfg.StandIn.Timeout, 10*time.Second)
		opts = append(opts, app.WithStandIn(standin.New(provider, timeout, cfg.StandIn.Attempts)))
	} else {
		log.Info().Msg("no stand-in api key, games against the stand-in are disabled")
	}

	service := app.NewGameService(games, catalog, feed, opts...)
	router := transport.NewRouter(service, transport.NewWSHandler(service))

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Bool("redis", redisClient != nil).Bool("postgres", pool != nil).Msg("starting game service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
