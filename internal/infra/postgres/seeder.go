package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-quiz-service/internal/domain"
)

// QuestionSeeder loads questions into the pool, skipping prompts that are
// already present so reseeding is safe to repeat.
type QuestionSeeder struct {
	pool *pgxpool.Pool
}

func NewQuestionSeeder(pool *pgxpool.Pool) *QuestionSeeder {
	return &QuestionSeeder{pool: pool}
}

// Seed inserts the questions and reports how many were new.
func (s *QuestionSeeder) Seed(ctx context.Context, questions []domain.Question) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, q := range questions {
		distractors, err := json.Marshal(q.CleanDistractors())
		if err != nil {
			return 0, fmt.Errorf("encode distractors: %w", err)
		}
		tag, err := tx.Exec(ctx,
			`INSERT INTO questions (prompt, category, difficulty, correct_answer, incorrect_answers)
			 SELECT $1, $2, $3, $4, $5::jsonb
			 WHERE NOT EXISTS (SELECT 1 FROM questions WHERE prompt = $1)`,
			q.Prompt, q.Category, q.Difficulty, q.CorrectAnswer, string(distractors))
		if err != nil {
			return 0, fmt.Errorf("insert question: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}
