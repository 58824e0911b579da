package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-quiz-service/internal/domain"
)

// GameStore implements app.GameStore on Postgres. All the invariants that
// need mutual exclusion are enforced by the database itself: the question
// claim runs as a single locking transaction, the answer ledger rides on a
// composite primary key, and score credits are in-place increments.
type GameStore struct {
	pool *pgxpool.Pool
}

func NewGameStore(pool *pgxpool.Pool) *GameStore {
	return &GameStore{pool: pool}
}

func (s *GameStore) CreateParticipant(ctx context.Context, p domain.Participant) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO participants (name, pseudo, email, password_hash, score, is_admin, is_ready)
		 VALUES ($1, $2, $3, $4, 0, $5, FALSE)
		 RETURNING id`,
		p.Name, p.Pseudo, p.Email, p.PasswordHash, p.IsAdmin).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrDuplicateParticipant
		}
		return 0, fmt.Errorf("create participant: %w", err)
	}
	return id, nil
}

func (s *GameStore) ParticipantByID(ctx context.Context, id int64) (domain.Participant, error) {
	return s.scanParticipant(s.pool.QueryRow(ctx,
		`SELECT id, name, pseudo, email, password_hash, score, is_admin, is_ready
		 FROM participants WHERE id = $1`, id))
}

func (s *GameStore) ParticipantByEmail(ctx context.Context, email string) (domain.Participant, error) {
	return s.scanParticipant(s.pool.QueryRow(ctx,
		`SELECT id, name, pseudo, email, password_hash, score, is_admin, is_ready
		 FROM participants WHERE email = $1`, email))
}

func (s *GameStore) ListParticipants(ctx context.Context) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, pseudo, email, password_hash, score, is_admin, is_ready
		 FROM participants ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Pseudo, &p.Email, &p.PasswordHash, &p.Score, &p.IsAdmin, &p.IsReady); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddScore credits points with a single in-place increment so concurrent
// submissions for the same participant never lose updates.
func (s *GameStore) AddScore(ctx context.Context, id int64, points int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE participants SET score = score + $1 WHERE id = $2`, points, id)
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *GameStore) SetReady(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE participants SET is_ready = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *GameStore) TopScores(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pseudo, score FROM participants ORDER BY score DESC, pseudo ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top scores: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Pseudo, &e.Score); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClaimQuestions atomically selects up to n unused questions and marks them
// used in one transaction. When fewer than n unused questions remain the
// whole pool is rotated first, so just-reset questions may come straight
// back in the same draw. FOR UPDATE SKIP LOCKED keeps concurrent draws from
// claiming the same row.
func (s *GameStore) ClaimQuestions(ctx context.Context, n int) ([]domain.Question, error) {
	claimed, err := s.claimQuestionsTx(ctx, n)
	if isDeadlock(err) {
		// Two shortfall rotations can deadlock on each other's claimed rows;
		// the aborted transaction succeeds once the winner commits.
		claimed, err = s.claimQuestionsTx(ctx, n)
	}
	return claimed, err
}

func (s *GameStore) claimQuestionsTx(ctx context.Context, n int) ([]domain.Question, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var unused int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE NOT is_used`).Scan(&unused); err != nil {
		return nil, fmt.Errorf("count unused: %w", err)
	}
	if unused < n {
		if _, err := tx.Exec(ctx, `UPDATE questions SET is_used = FALSE`); err != nil {
			return nil, fmt.Errorf("rotate pool: %w", err)
		}
	}

	claimed, err := claimUnused(ctx, tx, n)
	if err != nil {
		return nil, err
	}

	// Under read committed a concurrent draw can consume rows between the
	// count and the claim, leaving this draw short without a rotation.
	// Rotate everything except what was just claimed and take the shortfall.
	if len(claimed) < n {
		ids := make([]int64, 0, len(claimed))
		for _, q := range claimed {
			ids = append(ids, q.ID)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE questions SET is_used = FALSE WHERE NOT (id = ANY($1))`, ids); err != nil {
			return nil, fmt.Errorf("rotate pool: %w", err)
		}
		extra, err := claimUnused(ctx, tx, n-len(claimed))
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, extra...)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

func claimUnused(ctx context.Context, tx pgx.Tx, n int) ([]domain.Question, error) {
	rows, err := tx.Query(ctx,
		`UPDATE questions SET is_used = TRUE
		 WHERE id IN (
			SELECT id FROM questions WHERE NOT is_used
			ORDER BY random() LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, prompt, category, difficulty, correct_answer, incorrect_answers`, n)
	if err != nil {
		return nil, fmt.Errorf("claim questions: %w", err)
	}
	return scanQuestions(rows)
}

func (s *GameStore) QuestionByID(ctx context.Context, id int64) (domain.Question, error) {
	var q domain.Question
	var incorrect []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, prompt, category, difficulty, correct_answer, incorrect_answers, is_used
		 FROM questions WHERE id = $1`, id).
		Scan(&q.ID, &q.Prompt, &q.Category, &q.Difficulty, &q.CorrectAnswer, &incorrect, &q.IsUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, domain.ErrQuestionNotFound
		}
		return domain.Question{}, fmt.Errorf("get question: %w", err)
	}
	if err := json.Unmarshal(incorrect, &q.IncorrectAnswers); err != nil {
		return domain.Question{}, fmt.Errorf("decode distractors: %w", err)
	}
	return q, nil
}

// RecordAnswer relies on the (participant_id, question_id) primary key: the
// duplicate check and the insert are one statement, so concurrent identical
// submissions cannot both land.
func (s *GameStore) RecordAnswer(ctx context.Context, rec domain.AnswerRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO answers (participant_id, question_id, submitted_answer, is_correct, score_earned)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ParticipantID, rec.QuestionID, rec.SubmittedAnswer, rec.IsCorrect, rec.ScoreEarned)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyAnswered
		}
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

func (s *GameStore) Started(ctx context.Context) (bool, error) {
	var started bool
	if err := s.pool.QueryRow(ctx,
		`SELECT started FROM game_state WHERE id = 1`).Scan(&started); err != nil {
		return false, fmt.Errorf("game status: %w", err)
	}
	return started, nil
}

func (s *GameStore) SetStarted(ctx context.Context, started bool) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE game_state SET started = $1 WHERE id = 1`, started); err != nil {
		return fmt.Errorf("set started: %w", err)
	}
	return nil
}

// ResetGame wipes scores, readiness, the ledger, the pool flags, and the
// started flag in one transaction so clients never see a half-reset game.
func (s *GameStore) ResetGame(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM answers`); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE participants SET score = 0, is_ready = FALSE`); err != nil {
		return fmt.Errorf("reset participants: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE questions SET is_used = FALSE`); err != nil {
		return fmt.Errorf("rotate pool: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE game_state SET started = FALSE WHERE id = 1`); err != nil {
		return fmt.Errorf("reset started flag: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func (s *GameStore) scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.Name, &p.Pseudo, &p.Email, &p.PasswordHash, &p.Score, &p.IsAdmin, &p.IsReady)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participant{}, domain.ErrParticipantNotFound
		}
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()
	questions := []domain.Question{}
	for rows.Next() {
		var q domain.Question
		var incorrect []byte
		if err := rows.Scan(&q.ID, &q.Prompt, &q.Category, &q.Difficulty, &q.CorrectAnswer, &incorrect); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(incorrect, &q.IncorrectAnswers); err != nil {
			return nil, fmt.Errorf("decode distractors: %w", err)
		}
		q.IsUsed = true
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isDeadlock(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40P01"
}
