package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/config"
	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/infra/database"
	"exam-grading-service/internal/infra/database/migrations"
	"exam-grading-service/internal/infra/memory"
	pgcatalog "exam-grading-service/internal/infra/postgres"
	rediscache "exam-grading-service/internal/infra/redis"
	"exam-grading-service/internal/logger"
	"exam-grading-service/internal/metrics"
	transport "exam-grading-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the grading server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type backend struct {
	uow    app.UnitOfWork
	loader memory.ExamLoader
	users  app.UserDirectory
	close  func()
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	examTTL := config.TTLDuration(cfg.Exam.TTL, 10*time.Minute)
	leaderboardTTL := config.TTLDuration(cfg.Leaderboard.TTL, config.TTLDuration(cfg.Redis.TTL, time.Minute))

	hub := memory.NewHub()
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()

	var (
		exams        app.ExamCatalog
		leaderboards app.LeaderboardCache
		invalidator  app.CacheInvalidator
	)
	if redisClient != nil {
		exams = rediscache.NewExamCatalog(redisClient, be.loader, examTTL)
		leaderboards = rediscache.NewLeaderboardCache(redisClient, leaderboardTTL)
		invalidator = rediscache.NewInvalidator(redisClient)

		// Run resubscribes with backoff until relayCtx is done.
		go rediscache.NewRelay(redisClient, hub, log).Run(relayCtx, nil)
	} else {
		memLeaderboards := memory.NewLeaderboardCache(leaderboardTTL)
		exams = memory.NewExamCatalog(be.loader, examTTL)
		leaderboards = memLeaderboards
		invalidator = app.Invalidators{memLeaderboards, hub}
	}

	service := app.NewSubmissionService(exams, be.users, be.uow, invalidator,
		app.WithLogger(log),
		app.WithLeaderboardCache(leaderboards),
		app.WithTxTimeout(config.TTLDuration(cfg.Grading.TxTimeout, 0)),
	)
	wsHandler := transport.NewWSHandler(service, hub, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/leaderboard", wsHandler.LeaderboardHandler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting grading service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}
	stopRelay()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openBackend chooses Postgres, then SQLite, then the in-memory store. The relational backends
// are migrated before use.
func openBackend(ctx context.Context, cfg config.Config, log zerolog.Logger) (backend, error) {
	driver, dsn, ok := databaseTarget(cfg)
	if !ok {
		log.Warn().Msg("no database configured, using in-memory store")
		return backend{
			uow:    memory.NewStore(),
			loader: memory.NewStaticExamLoader(sampleExams()),
			users:  memory.NewUserDirectory(sampleUsers()),
			close:  func() {},
		}, nil
	}

	db, err := database.Open(ctx, driver, dsn)
	if err != nil {
		return backend{}, err
	}
	if err := migrate(ctx, db, driver, log); err != nil {
		db.Close()
		return backend{}, err
	}

	if driver == database.DriverSQLite {
		return backend{
			uow:    database.NewUnitOfWork(db),
			loader: memory.NewStaticExamLoader(sampleExams()),
			users:  memory.NewUserDirectory(sampleUsers()),
			close:  func() { db.Close() },
		}, nil
	}

	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		db.Close()
		return backend{}, err
	}
	return backend{
		uow:    database.NewUnitOfWork(db),
		loader: pgcatalog.NewExamLoader(pool),
		users:  pgcatalog.NewUserDirectory(pool),
		close: func() {
			pool.Close()
			db.Close()
		},
	}, nil
}

func migrate(ctx context.Context, db *bun.DB, driver string, log zerolog.Logger) error {
	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		log.Info().Str("driver", driver).Strs("applied", applied).Msg("migrations applied")
	}
	return nil
}

// sampleExams backs the in-memory and SQLite modes, which have no catalog tables of their own.
func sampleExams() map[string]domain.Exam {
	return map[string]domain.Exam{
		"exam-1": {
			ID:        "exam-1",
			Title:     "Mock Test 1",
			Published: true,
			Questions: []domain.ExamQuestion{
				{
					Question: domain.Question{ID: "q1", CorrectOption: 2, PositiveMarks: 4, NegativeMarks: 1, Subject: "physics", Topic: "kinematics", Difficulty: domain.DifficultyEasy},
					Order:    1,
				},
				{
					Question: domain.Question{ID: "q2", CorrectOption: 0, PositiveMarks: 4, NegativeMarks: 1, Subject: "chemistry", Topic: "stoichiometry", Difficulty: domain.DifficultyMedium},
					Order:    2,
				},
				{
					Question: domain.Question{ID: "q3", CorrectOption: 3, PositiveMarks: 4, Subject: "maths", Topic: "calculus", Difficulty: domain.DifficultyHard},
					Marks:    6,
					Order:    3,
				},
			},
		},
	}
}

func sampleUsers() map[string]string {
	return map[string]string{
		"u1": "Asha",
		"u2": "Ben",
	}
}
