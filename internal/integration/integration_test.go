package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"wavelink-service/internal/app"
	"wavelink-service/internal/domain"
	"wavelink-service/internal/infra/postgres"
	pgmigrations "wavelink-service/internal/infra/postgres/migrations"
	infraredis "wavelink-service/internal/infra/redis"
)

func TestTurnEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	catalog := infraredis.NewPairCatalog(redisClient, postgres.NewPairLoader(pool), 5*time.Minute)
	feed := infraredis.NewChangeFeed(redisClient, time.Hour, 100)
	service := app.NewGameService(postgres.NewGameRepository(pool), catalog, feed)

	alice := domain.Participant{ID: "alice", DisplayName: "Alice"}
	bob := domain.Participant{ID: "bob", DisplayName: "Bob"}
	game, err := service.OpenGame(ctx, bob, alice)
	if err != nil {
		t.Fatalf("open game: %v", err)
	}
	again, err := service.OpenGame(ctx, alice, bob)
	if err != nil || again.ID != game.ID {
		t.Fatalf("expected the same game on reopen, got %+v err=%v", again, err)
	}

	turn, err := service.StartTurn(ctx, game.ID)
	if err != nil {
		t.Fatalf("start turn: %v", err)
	}
	if !turn.Pair.Easy {
		t.Fatalf("first turn should use an easy pair, got %+v", turn.Pair)
	}

	if _, err := service.SubmitWord(ctx, turn.ID, "alice", "quokka"); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if _, err := service.SubmitWord(ctx, turn.ID, "alice", "wombat"); !errors.Is(err, domain.ErrSlotFilled) {
		t.Fatalf("expected ErrSlotFilled, got %v", err)
	}
	res, err := service.SubmitWord(ctx, turn.ID, "bob", "platypus")
	if err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if res.Matched == nil || *res.Matched || res.TurnClosed || res.OpposingWord != "quokka" {
		t.Fatalf("expected a mismatch against quokka, got %+v", res)
	}

	if _, err := service.SubmitWord(ctx, turn.ID, "bob", "Koala"); err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	res, err = service.SubmitWord(ctx, turn.ID, "alice", "koala")
	if err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if res.Matched == nil || !*res.Matched || !res.TurnClosed || res.Score == nil || *res.Score != 4 {
		t.Fatalf("expected a match worth 4 on the second attempt, got %+v", res)
	}

	state, err := service.Snapshot(ctx, game.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if state.OpenTurn != nil || len(state.ClosedTurns) != 1 || state.TotalScore != 4 {
		t.Fatalf("unexpected snapshot %+v", state)
	}

	events, err := service.PollChanges(ctx, game.ID, 0)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	// turn start, then two fills for each of the two attempts
	if len(events) != 5 || events[0].Kind != domain.ChangeTurnStarted {
		t.Fatalf("unexpected events %+v", events)
	}
	if last := events[len(events)-1]; last.Seq != state.Cursor || last.Kind != domain.ChangeAttemptCompleted {
		t.Fatalf("expected the last event to complete the turn at cursor %d, got %+v", state.Cursor, last)
	}

	next, err := service.StartTurn(ctx, game.ID)
	if err != nil {
		t.Fatalf("start second turn: %v", err)
	}
	if next.Seq != 2 || next.Pair.ID == turn.Pair.ID {
		t.Fatalf("expected a fresh pair for turn 2, got %+v", next)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "wavelink", "POSTGRES_PASSWORD": "wavelinkpass", "POSTGRES_DB": "wavelinkdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://wavelink:wavelinkpass@%s:%s/wavelinkdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
