package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"competition-service/internal/app"
	"competition-service/internal/domain"
	"competition-service/internal/infra/memory"
	"competition-service/internal/infra/migrations"
	"competition-service/internal/infra/postgres"
	infraredis "competition-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

func TestCompetitionFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrate(t, ctx, pgURL)

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

	catalog, err := app.NewCatalogProvider(ctx, memory.NewStaticLoader(sampleCompetitions()...), "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := postgres.NewStore(pool)
	service := app.NewService(store, catalog, infraredis.NewLeaderboardCache(redisClient, 5*time.Minute), nil)
	if err := service.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if _, err := service.StartCompetition(ctx, "comp-a", 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	correct, next, err := service.SubmitLevelAnswer(ctx, "alice", "", 1, " 7 ")
	if err != nil || !correct || next != 2 {
		t.Fatalf("submit: correct=%v next=%d err=%v", correct, next, err)
	}
	if _, err := service.RecordTimedResult(ctx, "bob", "", 1, 500); err != nil {
		t.Fatalf("timed result: %v", err)
	}
	improved, err := service.RecordTimedResult(ctx, "bob", "", 1, 900)
	if err != nil || improved {
		t.Fatalf("expected no improvement, got improved=%v err=%v", improved, err)
	}

	lb, err := service.Leaderboard(ctx, "")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Standings) != 2 || lb.Name != "Alpha" {
		t.Fatalf("expected two standings, got %+v", lb)
	}

	stats, err := service.Stats(ctx, "comp-a")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 2 || stats.Submissions != 1 || stats.CompletedLevels != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := service.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	lb, _ = service.Leaderboard(ctx, "")
	if lb.CompetitionID != "comp-a" || len(lb.Standings) != 0 {
		t.Fatalf("expected empty leaderboard after reset, got %+v", lb)
	}
}

func TestConcurrentActivationKeepsSingleActive(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrate(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	var wg sync.WaitGroup
	ids := []string{"a", "b", "c", "d", "e"}
	for round := 0; round < 10; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := store.UpdateState(ctx, id, true, func(st *domain.CompetitionState) { st.IsActive = true }); err != nil {
					t.Errorf("activate %s: %v", id, err)
				}
			}(id)
		}
	}
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.SaveBest(ctx, domain.Result{User: "alice", CompetitionID: "a", Level: 1, BestMs: int64(1000 - i), Ts: 1})
		}()
	}
	wg.Wait()

	states, err := store.ListStates(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	active := 0
	for _, st := range states {
		if st.IsActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active competition, got %+v", states)
	}
	results, _ := store.ListResults(ctx, "a")
	if len(results) != 1 || results[0].BestMs != 951 {
		t.Fatalf("expected best 951, got %+v", results)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	addr, stop := startContainer(t, ctx, tc.ContainerRequest{
		Image: "postgres:15-alpine",
		Env: map[string]string{
			"POSTGRES_USER":     "competition",
			"POSTGRES_PASSWORD": "competitionpass",
			"POSTGRES_DB":       "competitiondb",
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	})
	return fmt.Sprintf("postgres://competition:competitionpass@%s/competitiondb?sslmode=disable", addr), stop
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	addr, stop := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	return "redis://" + addr, stop
}

// startContainer runs req and returns host:port of its first exposed port.
func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) (string, func()) {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	stop := func() { _ = container.Terminate(ctx) }

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		stop()
		t.Fatalf("%s endpoint: %v", req.Image, err)
	}
	return endpoint, stop
}

// migrate applies the bun migrations; the postgres listener may accept connections
// shortly before the database is ready, so the first attempts are retried.
func migrate(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	var err error
	for attempt := 0; attempt < 10; attempt++ {
		if _, err = migrations.Apply(ctx, db); err == nil {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("migrate: %v", err)
}

func sampleCompetitions() []domain.Competition {
	return []domain.Competition{
		{
			ID:   "comp-a",
			Name: "Alpha",
			Levels: map[int]domain.Level{
				1: {Number: 1, InputType: domain.InputNumber, ExpectedAnswer: "7"},
				2: {Number: 2, InputType: domain.InputText, ExpectedAnswer: "Hello, World!"},
			},
		},
		{
			ID:     "comp-b",
			Name:   "Beta",
			Levels: map[int]domain.Level{1: {Number: 1, ExpectedAnswer: "x"}},
		},
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
