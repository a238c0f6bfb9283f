package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/infra/database"
	"exam-grading-service/internal/infra/database/migrations"
	"exam-grading-service/internal/infra/memory"
	pgcatalog "exam-grading-service/internal/infra/postgres"
	infraredis "exam-grading-service/internal/infra/redis"
	"exam-grading-service/internal/ranking"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

type stack struct {
	service *app.SubmissionService
	db      *bun.DB
	redis   *goredis.Client
	hub     *memory.Hub
}

func TestSubmitEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	notices, cancel := s.hub.Subscribe("exam-1")
	defer cancel()

	// u1: q1 right (+4), q2 skipped -> 4 of 8
	resA, err := s.service.Submit(ctx, app.SubmitRequest{UserID: "u1", ExamID: "exam-1", Answers: map[string]int{"q1": 2}, TimeSpent: 300})
	if err != nil {
		t.Fatalf("submit u1: %v", err)
	}
	if resA.Score != 4 || resA.Rank != 1 || resA.TotalParticipants != 1 {
		t.Fatalf("unexpected first result %+v", resA)
	}

	// u2: both right -> 8 of 8
	resB, err := s.service.Submit(ctx, app.SubmitRequest{UserID: "u2", ExamID: "exam-1", Answers: map[string]int{"q1": 2, "q2": 0}, TimeSpent: 250})
	if err != nil {
		t.Fatalf("submit u2: %v", err)
	}
	if resB.Score != 8 || resB.Rank != 1 || resB.TotalParticipants != 2 || resB.Percentage != 100 {
		t.Fatalf("unexpected second result %+v", resB)
	}

	_, err = s.service.Submit(ctx, app.SubmitRequest{UserID: "u1", ExamID: "exam-1", Answers: map[string]int{"q1": 2, "q2": 0}})
	if !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate submission, got %v", err)
	}

	lb, err := s.service.Leaderboard(ctx, "exam-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", lb.Entries)
	}
	if lb.Entries[0].UserID != "u2" || lb.Entries[0].Rank != 1 || lb.Entries[0].UserName != "Bob" {
		t.Fatalf("expected Bob leading, got %+v", lb.Entries[0])
	}
	if lb.Entries[1].UserID != "u1" || lb.Entries[1].Rank != 2 {
		t.Fatalf("expected u1 second, got %+v", lb.Entries[1])
	}

	select {
	case <-notices:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected invalidation relayed to the hub")
	}
}

func TestConcurrentSubmitsKeepRanksConsistent(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		i := i
		g.Go(func() error {
			answers := map[string]int{"q1": 2}
			if i%2 == 0 {
				answers["q2"] = 0
			}
			_, err := s.service.Submit(ctx, app.SubmitRequest{UserID: fmt.Sprintf("user-%d", i), ExamID: "exam-1", Answers: answers})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent submit: %v", err)
	}

	rankings, err := database.NewUnitOfWork(s.db).Rankings().ListByExam(ctx, "exam-1")
	if err != nil {
		t.Fatalf("list rankings: %v", err)
	}
	if len(rankings) != 10 {
		t.Fatalf("expected 10 rankings, got %d", len(rankings))
	}
	standings := ranking.Assign(rankings)
	if err := ranking.Check(standings); err != nil {
		t.Fatalf("invariant: %v", err)
	}
	for _, st := range standings {
		if st.Rank != st.Previous {
			t.Fatalf("persisted rank of %s is %d, expected %d", st.UserID, st.Previous, st.Rank)
		}
		want := 1
		if st.Score == 4 {
			want = 6
		}
		if st.Rank != want {
			t.Fatalf("user %s with score %d: expected rank %d, got %d", st.UserID, st.Score, want, st.Rank)
		}
	}
}

func TestUnpublishedExamRejected(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	_, err := s.service.Submit(ctx, app.SubmitRequest{UserID: "u1", ExamID: "exam-draft", Answers: map[string]int{"q1": 2}})
	if !errors.Is(err, domain.ErrExamNotAvailable) {
		t.Fatalf("expected exam not available, got %v", err)
	}
	_, err = s.service.Submit(ctx, app.SubmitRequest{UserID: "u1", ExamID: "missing", Answers: map[string]int{}})
	if !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected exam not found, got %v", err)
	}
}

func newStack(t *testing.T, ctx context.Context) stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db, err := database.Open(ctx, database.DriverPostgres, pgURL)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seedCatalog(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	hub := memory.NewHub()
	relayCtx, stopRelay := context.WithCancel(ctx)
	t.Cleanup(stopRelay)
	ready := make(chan struct{})
	relay := infraredis.NewRelay(redisClient, hub, zerolog.Nop())
	go func() { _ = relay.Run(relayCtx, ready) }()
	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatalf("relay did not subscribe")
	}

	catalog := infraredis.NewExamCatalog(redisClient, pgcatalog.NewExamLoader(pool), 5*time.Minute)
	service := app.NewSubmissionService(
		catalog,
		pgcatalog.NewUserDirectory(pool),
		database.NewUnitOfWork(db),
		infraredis.NewInvalidator(redisClient),
		app.WithLeaderboardCache(infraredis.NewLeaderboardCache(redisClient, time.Minute)),
		app.WithTxTimeout(10*time.Second),
	)
	return stack{service: service, db: db, redis: redisClient, hub: hub}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "grading", "POSTGRES_PASSWORD": "gradingpass", "POSTGRES_DB": "gradingdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://grading:gradingpass@%s:%s/gradingdb?sslmode=disable", host, port.Port())
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

func seedCatalog(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	stmts := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO exams (id, title, published) VALUES (?, ?, ?)`, []interface{}{"exam-1", "Mock Test 1", true}},
		{`INSERT INTO exams (id, title, published) VALUES (?, ?, ?)`, []interface{}{"exam-draft", "Unreleased", false}},
		{`INSERT INTO questions (id, correct_option, positive_marks, negative_marks, subject, topic, difficulty) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]interface{}{"q1", 2, 4, 1, "physics", "kinematics", "easy"}},
		{`INSERT INTO questions (id, correct_option, positive_marks, negative_marks, subject, topic, difficulty) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]interface{}{"q2", 0, 4, 1, "maths", "algebra", "medium"}},
		{`INSERT INTO exam_questions (exam_id, question_id, marks, sort_order) VALUES (?, ?, ?, ?)`, []interface{}{"exam-1", "q1", 0, 1}},
		{`INSERT INTO exam_questions (exam_id, question_id, marks, sort_order) VALUES (?, ?, ?, ?)`, []interface{}{"exam-1", "q2", 0, 2}},
		{`INSERT INTO exam_questions (exam_id, question_id, marks, sort_order) VALUES (?, ?, ?, ?)`, []interface{}{"exam-draft", "q1", 0, 1}},
		{`INSERT INTO users (id, name) VALUES (?, ?)`, []interface{}{"u1", "Alice"}},
		{`INSERT INTO users (id, name) VALUES (?, ?)`, []interface{}{"u2", "Bob"}},
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st.query, st.args...); err != nil {
			t.Fatalf("seed %q: %v", st.query, err)
		}
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
