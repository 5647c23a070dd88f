package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-runner/internal/app"
	"quiz-runner/internal/auth"
	"quiz-runner/internal/backend"
	"quiz-runner/internal/backend/backendtest"
	"quiz-runner/internal/domain"
	"quiz-runner/internal/infra/postgres"
	pgmigrations "quiz-runner/internal/infra/postgres/migrations"
	infraredis "quiz-runner/internal/infra/redis"
)

func TestQuizSurvivesRestartWithPostgresState(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateDB(t, ctx, pgURL)

	api := newAPI(t)
	questions := sampleQuestions()

	first := connectPool(t, ctx, pgURL)
	m := newMachine(api, postgres.NewStateStore(first, "quiz-runner:5:"), questions)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.SelectAnswer(ctx, 71, 2); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := m.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	end := m.Snapshot().EndTime
	first.Close()

	second := connectPool(t, ctx, pgURL)
	defer second.Close()
	store := postgres.NewStateStore(second, "quiz-runner:5:")
	resumed := newMachine(api, store, questions)
	if err := resumed.Start(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	snap := resumed.Snapshot()
	if !snap.EndTime.Equal(end) || snap.Index != 1 {
		t.Fatalf("expected end %s index 1, got %s index %d", end, snap.EndTime, snap.Index)
	}
	if got := snap.Answers[71]; got == nil || *got != 2 {
		t.Fatalf("expected q71=2 after restart, got %v", got)
	}

	if _, err := resumed.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, key := range app.KeysFor(7).All() {
		if _, ok, err := store.Get(ctx, key); err != nil || ok {
			t.Fatalf("key %s still present after submit (err=%v)", key, err)
		}
	}
	if api.Starts() != 1 {
		t.Fatalf("expected one backend start, got %d", api.Starts())
	}
}

func TestRedisStateAndQuizCache(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	api := newAPI(t)
	quizzes := infraredis.NewQuizRepository(client, api.client, time.Minute, zerolog.Nop())
	questions, err := quizzes.GetQuestions(ctx, 7)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	store := infraredis.NewStateStore(client, "quiz-runner:5:", time.Hour)
	m := newMachine(api, store, questions)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	raw, err := client.Get(ctx, "quiz-runner:5:"+app.KeysFor(7).EndTime).Result()
	if err != nil {
		t.Fatalf("end time not in redis: %v", err)
	}
	if raw != app.FormatEndTime(m.Snapshot().EndTime) {
		t.Fatalf("unexpected stored end time %s", raw)
	}
	if _, err := m.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n, _ := client.Exists(ctx, "quiz-runner:5:"+app.KeysFor(7).EndTime).Result(); n != 0 {
		t.Fatalf("end time survived submit")
	}
}

type testAPI struct {
	*backendtest.Server
	client *backend.Client
}

func newAPI(t *testing.T) *testAPI {
	t.Helper()
	srv := backendtest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddQuiz(domain.Quiz{ID: 7, ChapterID: 1, Duration: 30}, sampleQuestions()...)
	sessions := auth.NewStaticProvider(domain.Session{UserID: 5})
	return &testAPI{Server: srv, client: backend.New(srv.URL(), sessions)}
}

func newMachine(api *testAPI, store app.StateStore, questions []domain.Question) *app.Machine {
	return app.NewMachine(app.MachineConfig{
		QuizID:          7,
		UserID:          5,
		Questions:       questions,
		Store:           store,
		Starter:         api.client,
		Submitter:       app.NewSubmitter(api.client, store, zerolog.Nop()),
		DefaultDuration: 30 * time.Minute,
		Log:             zerolog.Nop(),
	})
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 71, QuizID: 7, Statement: "Boiling point of water (C)?", Option1: "90", Option2: "100", Option3: "110", Option4: "120", CorrectOption: 2},
		{ID: 72, QuizID: 7, Statement: "Speed of light unit?", Option1: "m/s", Option2: "kg", Option3: "N", Option4: "J", CorrectOption: 1},
	}
}

func connectPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	return pool
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

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
