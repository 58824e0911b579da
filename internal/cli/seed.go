package cli

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/domain"
	pgstore "trivia-quiz-service/internal/infra/postgres"
)

type seedQuestion struct {
	Question         string   `json:"question"`
	Category         string   `json:"category"`
	Difficulty       string   `json:"difficulty"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// NewSeedCmd loads questions from a JSON file into the Postgres pool.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <questions.json>",
		Short: "Load quiz questions into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var raw []seedQuestion
			if err := json.Unmarshal(data, &raw); err != nil {
				return fmt.Errorf("parse questions file: %w", err)
			}
			questions := make([]domain.Question, 0, len(raw))
			for _, q := range raw {
				if q.Question == "" || q.CorrectAnswer == "" {
					return fmt.Errorf("question entries need question and correct_answer fields")
				}
				for _, wrong := range q.IncorrectAnswers {
					if domain.NormalizeAnswer(wrong) == domain.NormalizeAnswer(q.CorrectAnswer) {
						return fmt.Errorf("question %q: incorrect answer %q matches the correct answer", q.Question, wrong)
					}
				}
				questions = append(questions, domain.Question{
					Prompt:           q.Question,
					Category:         q.Category,
					Difficulty:       q.Difficulty,
					CorrectAnswer:    q.CorrectAnswer,
					IncorrectAnswers: q.IncorrectAnswers,
				})
			}

			if err := runMigrationsWithConfig(ctx, cfg); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			inserted, err := pgstore.NewQuestionSeeder(pool).Seed(ctx, questions)
			if err != nil {
				return err
			}
			log.Printf("seeded %d new questions (%d total in file)", inserted, len(questions))
			return nil
		},
	}
}
