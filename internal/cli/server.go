package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mathquest-quiz-service/internal/app"
	"mathquest-quiz-service/internal/config"
	"mathquest-quiz-service/internal/domain"
	"mathquest-quiz-service/internal/infra/memory"
	pginfra "mathquest-quiz-service/internal/infra/postgres"
	redisinfra "mathquest-quiz-service/internal/infra/redis"
	"mathquest-quiz-service/internal/observability"
	transport "mathquest-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Server.Mode)
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestionSets())
	if pool != nil {
		loader = pginfra.NewQuestionLoader(pool)
	}

	bankTTL := config.Duration(cfg.Quiz.BankCacheTTL, 10*time.Minute)
	var questionRepo app.QuestionRepository
	if redisClient != nil {
		questionRepo = redisinfra.NewQuestionRepository(redisClient, loader, bankTTL)
	} else {
		questionRepo = memory.NewQuestionRepository(loader, bankTTL)
	}

	var attempts app.AttemptStore = memory.NewAttemptStore()
	if pool != nil {
		attempts = pginfra.NewAttemptStore(pool)
	}

	var leaderboard app.LeaderboardStore
	if redisClient != nil {
		leaderboard = redisinfra.NewLeaderboard(redisClient)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	service := app.NewQuizService(cfg, app.Deps{
		Questions:   questionRepo,
		Attempts:    attempts,
		Leaderboard: leaderboard,
		Logger:      logger,
		Metrics:     metrics,
	})
	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/leaderboard", transport.NewLeaderboardHandler(service))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestionSets keeps the service playable with no database
// attached; swap in the postgres loader for real content.
func sampleQuestionSets() []domain.QuestionSet {
	return []domain.QuestionSet{
		{
			LevelID: "level-1",
			WeekNo:  1,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, CorrectAnswer: "4", Points: 1},
				{ID: "q2", Prompt: "What is 7 - 3?", Options: []string{"2", "3", "4", "5"}, CorrectAnswer: "4", Points: 1},
				{ID: "q3", Prompt: "What is 3 x 4?", Options: []string{"7", "10", "12", "14"}, CorrectAnswer: "12", Points: 2},
			},
		},
	}
}
