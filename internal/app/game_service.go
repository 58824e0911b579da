package app

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// DefaultBatchSize is the number of questions handed out when the caller
// does not ask for a specific batch size.
const DefaultBatchSize = 10

// LeaderboardLimit caps the scoreboard exposed to clients.
const LeaderboardLimit = 10

// ParticipantStore abstracts participant persistence. AddScore must be an
// atomic storage-level increment, never read-modify-write in the caller.
type ParticipantStore interface {
	CreateParticipant(ctx context.Context, p domain.Participant) (int64, error)
	ParticipantByID(ctx context.Context, id int64) (domain.Participant, error)
	ParticipantByEmail(ctx context.Context, email string) (domain.Participant, error)
	ListParticipants(ctx context.Context) ([]domain.Participant, error)
	AddScore(ctx context.Context, id int64, points int) error
	SetReady(ctx context.Context, id int64) error
	TopScores(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// QuestionPool hands out unused questions. ClaimQuestions must atomically
// select and mark questions used so concurrent draws never share a question,
// and must rotate the whole pool when fewer than n unused questions remain.
type QuestionPool interface {
	ClaimQuestions(ctx context.Context, n int) ([]domain.Question, error)
	QuestionByID(ctx context.Context, id int64) (domain.Question, error)
}

// AnswerLedger records submissions. RecordAnswer must enforce the
// at-most-once (participant, question) invariant with a storage-level
// uniqueness constraint and return domain.ErrAlreadyAnswered on a duplicate.
type AnswerLedger interface {
	RecordAnswer(ctx context.Context, rec domain.AnswerRecord) error
}

// SessionState owns the shared started flag and the all-or-nothing reset.
type SessionState interface {
	Started(ctx context.Context) (bool, error)
	SetStarted(ctx context.Context, started bool) error
	ResetGame(ctx context.Context) error
}

// GameStore is the full persistence surface the service needs.
type GameStore interface {
	ParticipantStore
	QuestionPool
	AnswerLedger
	SessionState
}

// LeaderboardSource serves the scoreboard, possibly from a cache in front
// of the store.
type LeaderboardSource interface {
	TopScores(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	Invalidate(ctx context.Context)
}

// PasswordHasher hides the credential scheme from the core.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Name     string
	Pseudo   string
	Email    string
	Password string
}

// GameService contains the quiz game use cases: question distribution,
// answer scoring, lobby readiness, and the admin-gated start/reset switch.
type GameService struct {
	store      GameStore
	boards     LeaderboardSource
	hasher     PasswordHasher
	lobby      *LobbyHub
	adminEmail string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGameService wires the service. boards may be nil, in which case the
// leaderboard is read straight from the store.
func NewGameService(store GameStore, boards LeaderboardSource, hasher PasswordHasher, adminEmail string) *GameService {
	return &GameService{
		store:      store,
		boards:     boards,
		hasher:     hasher,
		lobby:      NewLobbyHub(),
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Register creates a participant. The admin flag is granted when the email
// matches the configured admin email, mirroring the privileged-identity rule
// applied at registration time.
func (s *GameService) Register(ctx context.Context, in RegisterInput) (domain.Participant, error) {
	name := strings.TrimSpace(in.Name)
	pseudo := strings.TrimSpace(in.Pseudo)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	password := strings.TrimSpace(in.Password)
	if name == "" || pseudo == "" || email == "" || password == "" {
		return domain.Participant{}, domain.ErrInvalidInput
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.Participant{}, err
	}

	p := domain.Participant{
		Name:         name,
		Pseudo:       pseudo,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      s.adminEmail != "" && email == s.adminEmail,
	}
	id, err := s.store.CreateParticipant(ctx, p)
	if err != nil {
		return domain.Participant{}, err
	}
	p.ID = id
	s.broadcastLobby(ctx)
	return p, nil
}

// Login verifies credentials and returns the participant. Unknown emails and
// bad passwords are indistinguishable to the caller.
func (s *GameService) Login(ctx context.Context, email, password string) (domain.Participant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.Participant{}, domain.ErrInvalidInput
	}
	p, err := s.store.ParticipantByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return domain.Participant{}, domain.ErrInvalidCredentials
		}
		return domain.Participant{}, err
	}
	if err := s.hasher.Compare(p.PasswordHash, password); err != nil {
		return domain.Participant{}, domain.ErrInvalidCredentials
	}
	return p, nil
}

// DrawBatch claims up to n unused questions and returns their public views,
// with the correct answer shuffled in among the distractors. An empty pool
// yields an empty batch, never an error.
func (s *GameService) DrawBatch(ctx context.Context, n int) ([]domain.PublicQuestion, error) {
	if n <= 0 {
		n = DefaultBatchSize
	}
	questions, err := s.store.ClaimQuestions(ctx, n)
	if err != nil {
		return nil, err
	}
	batch := make([]domain.PublicQuestion, 0, len(questions))
	for _, q := range questions {
		batch = append(batch, domain.PublicQuestion{
			ID:         q.ID,
			Prompt:     q.Prompt,
			Category:   q.Category,
			Difficulty: q.Difficulty,
			Answers:    s.shuffledAnswers(q),
		})
	}
	return batch, nil
}

// SubmitAnswer scores a submission. The ledger insert happens before any
// crediting, so a duplicate is rejected with no side effects at all.
func (s *GameService) SubmitAnswer(ctx context.Context, participantID, questionID int64, answer string) (domain.AnswerResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return domain.AnswerResult{}, domain.ErrInvalidInput
	}
	if _, err := s.store.ParticipantByID(ctx, participantID); err != nil {
		return domain.AnswerResult{}, err
	}
	q, err := s.store.QuestionByID(ctx, questionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	correct := domain.NormalizeAnswer(answer) == domain.NormalizeAnswer(q.CorrectAnswer)
	earned := 0
	if correct {
		earned = domain.Points(q.Difficulty)
	}

	rec := domain.AnswerRecord{
		ParticipantID:   participantID,
		QuestionID:      questionID,
		SubmittedAnswer: answer,
		IsCorrect:       correct,
		ScoreEarned:     earned,
	}
	if err := s.store.RecordAnswer(ctx, rec); err != nil {
		return domain.AnswerResult{}, err
	}

	if correct {
		if err := s.store.AddScore(ctx, participantID, earned); err != nil {
			return domain.AnswerResult{}, err
		}
		if s.boards != nil {
			s.boards.Invalidate(ctx)
		}
		s.broadcastLobby(ctx)
	}

	return domain.AnswerResult{
		IsCorrect:     correct,
		ScoreEarned:   earned,
		CorrectAnswer: q.CorrectAnswer,
	}, nil
}

// SetReady marks a participant ready. Calling it twice is the same as once.
func (s *GameService) SetReady(ctx context.Context, participantID int64) error {
	if err := s.store.SetReady(ctx, participantID); err != nil {
		return err
	}
	s.broadcastLobby(ctx)
	return nil
}

// ListParticipants returns the lobby roster in registration order.
func (s *GameService) ListParticipants(ctx context.Context) ([]domain.LobbyEntry, error) {
	participants, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LobbyEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.LobbyEntry{
			Pseudo:  p.Pseudo,
			IsAdmin: p.IsAdmin,
			IsReady: p.IsReady,
		})
	}
	return entries, nil
}

// Start flips the shared session flag. Admin only.
func (s *GameService) Start(ctx context.Context, requesterID int64) error {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return err
	}
	if err := s.store.SetStarted(ctx, true); err != nil {
		return err
	}
	s.broadcastLobby(ctx)
	return nil
}

// Status reports whether the game has been started.
func (s *GameService) Status(ctx context.Context) (domain.GameStatus, error) {
	started, err := s.store.Started(ctx)
	if err != nil {
		return domain.GameStatus{}, err
	}
	return domain.GameStatus{Started: started}, nil
}

// Reset wipes the game back to lobby conditions in one atomic step: scores
// zeroed, ready flags cleared, pool rotated, ledger emptied, started false.
// Admin only.
func (s *GameService) Reset(ctx context.Context, requesterID int64) error {
	if err := s.requireAdmin(ctx, requesterID); err != nil {
		return err
	}
	if err := s.store.ResetGame(ctx); err != nil {
		return err
	}
	if s.boards != nil {
		s.boards.Invalidate(ctx)
	}
	s.broadcastLobby(ctx)
	return nil
}

// GetScore returns a participant's current score.
func (s *GameService) GetScore(ctx context.Context, participantID int64) (int, error) {
	p, err := s.store.ParticipantByID(ctx, participantID)
	if err != nil {
		return 0, err
	}
	return p.Score, nil
}

// Leaderboard returns the top scores, highest first, pseudo ascending on ties.
func (s *GameService) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if s.boards != nil {
		return s.boards.TopScores(ctx, LeaderboardLimit)
	}
	return s.store.TopScores(ctx, LeaderboardLimit)
}

// Subscribe attaches a lobby listener. The caller must invoke the returned
// cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context) (<-chan LobbySnapshot, func(), error) {
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.lobby.Subscribe(snapshot)
	return ch, cancel, nil
}

func (s *GameService) requireAdmin(ctx context.Context, requesterID int64) error {
	p, err := s.store.ParticipantByID(ctx, requesterID)
	if err != nil {
		return err
	}
	if !p.IsAdmin {
		return domain.ErrForbidden
	}
	return nil
}

func (s *GameService) snapshot(ctx context.Context) (LobbySnapshot, error) {
	players, err := s.ListParticipants(ctx)
	if err != nil {
		return LobbySnapshot{}, err
	}
	started, err := s.store.Started(ctx)
	if err != nil {
		return LobbySnapshot{}, err
	}
	board, err := s.Leaderboard(ctx)
	if err != nil {
		return LobbySnapshot{}, err
	}
	return LobbySnapshot{Players: players, Started: started, Leaderboard: board}, nil
}

// broadcastLobby pushes a fresh snapshot to live subscribers. Failures here
// never affect the triggering request.
func (s *GameService) broadcastLobby(ctx context.Context) {
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return
	}
	s.lobby.Broadcast(snapshot)
}

func (s *GameService) shuffledAnswers(q domain.Question) []string {
	// Stores sanitize on the way in; cleaning again keeps the public view
	// duplicate-free even for questions from an unsanitized source.
	distractors := q.CleanDistractors()
	answers := make([]string, 0, len(distractors)+1)
	answers = append(answers, distractors...)
	answers = append(answers, q.CorrectAnswer)

	s.mu.Lock()
	s.rnd.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})
	s.mu.Unlock()
	return answers
}
