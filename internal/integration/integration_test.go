package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"chart-abtest-service/internal/app"
	"chart-abtest-service/internal/domain"
	pgstore "chart-abtest-service/internal/infra/postgres"
	pgmigrations "chart-abtest-service/internal/infra/postgres/migrations"
	infraredis "chart-abtest-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestTrialEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedRanking(t, ctx, pgURL, "celtics", sampleRanking())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewRankingLoader(pool, "celtics")

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	rankings := infraredis.NewRankingRepository(redisClient, loader, "celtics", 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewTrialService(sessionStore, rankings, app.Settings{TopN: 3}, nil)

	id := service.CreateSession(ctx).SessionID
	view, err := service.StartTrial(ctx, id)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(view.Candidates) != 3 || view.Candidates[0] != "Bill Russell" {
		t.Fatalf("expected top 3 led by Bill Russell, got %+v", view.Candidates)
	}

	if result, err := service.SubmitAnswer(ctx, id, "K.C. Jones"); err != nil || result.Correct {
		t.Fatalf("expected wrong answer, got %+v err=%v", result, err)
	}
	result, err := service.SubmitAnswer(ctx, id, "Bill Russell")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.Trial.Status != domain.TrialCompleted {
		t.Fatalf("expected completed trial, got %+v", result)
	}

	records, _, err := service.Results(ctx, id)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %+v", records)
	}

	cached, err := redisClient.LLen(ctx, "ranking:celtics").Result()
	if err != nil || cached != int64(len(sampleRanking())) {
		t.Fatalf("expected full dataset cached in redis, got %d err=%v", cached, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "abtest", "POSTGRES_PASSWORD": "abtestpass", "POSTGRES_DB": "abtestdb"},
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
	dsn := fmt.Sprintf("postgres://abtest:abtestpass@%s:%s/abtestdb?sslmode=disable", host, port.Port())
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

func seedRanking(t *testing.T, ctx context.Context, dsn, dataset string, entities []domain.RankedEntity) {
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

	if err := pgstore.SeedRanking(ctx, db, dataset, entities); err != nil {
		t.Fatalf("seed ranking: %v", err)
	}
}

func sampleRanking() []domain.RankedEntity {
	return []domain.RankedEntity{
		{Name: "Tom Heinsohn", Score: 8},
		{Name: "Bill Russell", Score: 11},
		{Name: "K.C. Jones", Score: 8},
		{Name: "Sam Jones", Score: 10},
		{Name: "Robert Horry", Score: 7},
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
