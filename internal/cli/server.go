package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/auth"
	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
	pgstore "trivia-quiz-service/internal/infra/postgres"
	redisinfra "trivia-quiz-service/internal/infra/redis"
	transport "trivia-quiz-service/internal/transport/http"
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

	var store app.GameStore
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewGameStore(pool)
	} else {
		memStore := memory.NewGameStore()
		memStore.SeedQuestions(sampleQuestions())
		store = memStore
		log.Printf("no postgres configured, running with the in-memory store")
	}

	var boards app.LeaderboardSource
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cacheTTL := config.TTLDuration(cfg.Leaderboard.CacheTTL, 15*time.Second)
		boards = redisinfra.NewLeaderboardCache(client, store, cacheTTL)
	}

	tokenTTL := config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, tokenTTL)
	service := app.NewGameService(store, boards, auth.NewBcryptHasher(), cfg.Auth.AdminEmail)
	api := transport.NewAPI(service, tokens)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting trivia quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions provides a tiny pool for store-less demo runs; real
// deployments seed the pool with the seed subcommand.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			Prompt:           "What is the capital of France?",
			Category:         "Geography",
			Difficulty:       domain.DifficultyEasy,
			CorrectAnswer:    "Paris",
			IncorrectAnswers: []string{"Lyon", "Marseille", "Toulouse"},
		},
		{
			Prompt:           "Who painted the Mona Lisa?",
			Category:         "Art",
			Difficulty:       domain.DifficultyMedium,
			CorrectAnswer:    "Leonardo da Vinci",
			IncorrectAnswers: []string{"Michelangelo", "Raphael", "Donatello"},
		},
		{
			Prompt:           "Who composed the Ninth Symphony?",
			Category:         "Music",
			Difficulty:       domain.DifficultyHard,
			CorrectAnswer:    "Ludwig van Beethoven",
			IncorrectAnswers: []string{"Mozart", "Bach", "Chopin"},
		},
	}
}
