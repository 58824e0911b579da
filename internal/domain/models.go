package domain

import "strings"

// Difficulty levels recognized by the scoring table. Anything else is worth
// the base point value.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Points returns the point value of a question difficulty.
func Points(difficulty string) int {
	switch difficulty {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 2
	case DifficultyHard:
		return 3
	default:
		return 1
	}
}

// Participant is a registered player. Score only grows through correct
// answers; a game reset is the single path back to zero.
type Participant struct {
	ID           int64
	Name         string
	Pseudo       string
	Email        string
	PasswordHash string
	Score        int
	IsAdmin      bool
	IsReady      bool
}

// NormalizeAnswer makes answer comparison case- and whitespace-insensitive.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// Question is the internal, answer-bearing form of a quiz question.
// IsUsed marks it as already handed out in the current pool cycle.
type Question struct {
	ID               int64
	Prompt           string
	Category         string
	Difficulty       string
	CorrectAnswer    string
	IncorrectAnswers []string
	IsUsed           bool
}

// CleanDistractors returns the incorrect answers with any entry that
// normalizes to the correct answer dropped. A distractor colliding with the
// correct answer would show the answer twice in the public view and give
// it away.
func (q Question) CleanDistractors() []string {
	correct := NormalizeAnswer(q.CorrectAnswer)
	out := make([]string, 0, len(q.IncorrectAnswers))
	for _, d := range q.IncorrectAnswers {
		if NormalizeAnswer(d) == correct {
			continue
		}
		out = append(out, d)
	}
	return out
}

// PublicQuestion is the client-facing view of a question: the correct answer
// is shuffled in with the distractors and never singled out.
type PublicQuestion struct {
	ID         int64    `json:"id"`
	Prompt     string   `json:"question"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Answers    []string `json:"answers"`
}

// AnswerRecord is the ledger entry for one submission. At most one record
// exists per (participant, question) pair.
type AnswerRecord struct {
	ParticipantID   int64
	QuestionID      int64
	SubmittedAnswer string
	IsCorrect       bool
	ScoreEarned     int
}

// AnswerResult is what a submitter gets back.
type AnswerResult struct {
	IsCorrect     bool   `json:"is_correct"`
	ScoreEarned   int    `json:"score_earned"`
	CorrectAnswer string `json:"correct_answer"`
}

// LobbyEntry is the roster view exposed to the lobby.
type LobbyEntry struct {
	Pseudo  string `json:"pseudo"`
	IsAdmin bool   `json:"is_admin"`
	IsReady bool   `json:"is_ready"`
}

// LeaderboardEntry is one row of the top-10 scoreboard.
type LeaderboardEntry struct {
	Pseudo string `json:"pseudo"`
	Score  int    `json:"score"`
}

// GameStatus reports whether the shared session has been started.
type GameStatus struct {
	Started bool `json:"started"`
}
