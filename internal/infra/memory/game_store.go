package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

type answerKey struct {
	participantID int64
	questionID    int64
}

// GameStore is an in-memory implementation of app.GameStore. A single mutex
// stands in for the transactional guarantees the Postgres store gets from
// the database, which keeps claim-and-mark and reset atomic here too.
type GameStore struct {
	mu             sync.Mutex
	rnd            *rand.Rand
	nextPlayerID   int64
	nextQuestionID int64
	participants   map[int64]*domain.Participant
	questions      map[int64]*domain.Question
	answers        map[answerKey]domain.AnswerRecord
	started        bool
}

func NewGameStore() *GameStore {
	return &GameStore{
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		participants: make(map[int64]*domain.Participant),
		questions:    make(map[int64]*domain.Question),
		answers:      make(map[answerKey]domain.AnswerRecord),
	}
}

// SeedQuestions loads questions into the pool. Questions without an id get
// one assigned, and distractors matching the correct answer are dropped.
// Useful for tests and demo runs without Postgres.
func (s *GameStore) SeedQuestions(questions []domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		q.IncorrectAnswers = q.CleanDistractors()
		if q.ID == 0 {
			s.nextQuestionID++
			q.ID = s.nextQuestionID
		} else if q.ID > s.nextQuestionID {
			s.nextQuestionID = q.ID
		}
		q.IsUsed = false
		stored := q
		s.questions[q.ID] = &stored
	}
}

func (s *GameStore) CreateParticipant(_ context.Context, p domain.Participant) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.participants {
		if existing.Email == p.Email || existing.Pseudo == p.Pseudo {
			return 0, domain.ErrDuplicateParticipant
		}
	}
	s.nextPlayerID++
	p.ID = s.nextPlayerID
	stored := p
	s.participants[p.ID] = &stored
	return p.ID, nil
}

func (s *GameStore) ParticipantByID(_ context.Context, id int64) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return *p, nil
}

func (s *GameStore) ParticipantByEmail(_ context.Context, email string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.Email == email {
			return *p, nil
		}
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

func (s *GameStore) ListParticipants(_ context.Context) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *GameStore) AddScore(_ context.Context, id int64, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.Score += points
	return nil
}

func (s *GameStore) SetReady(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.IsReady = true
	return nil
}

func (s *GameStore) TopScores(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.participants))
	for _, p := range s.participants {
		entries = append(entries, domain.LeaderboardEntry{Pseudo: p.Pseudo, Score: p.Score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Pseudo < entries[j].Pseudo
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ClaimQuestions selects up to n unused questions in random order and marks
// them used within the same critical section. A short pool first rotates:
// every used flag is cleared, even flags of questions about to be reselected.
func (s *GameStore) ClaimQuestions(_ context.Context, n int) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return []domain.Question{}, nil
	}

	if s.countUnusedLocked() < n {
		for _, q := range s.questions {
			q.IsUsed = false
		}
	}

	unused := make([]*domain.Question, 0, len(s.questions))
	for _, q := range s.questions {
		if !q.IsUsed {
			unused = append(unused, q)
		}
	}
	s.rnd.Shuffle(len(unused), func(i, j int) {
		unused[i], unused[j] = unused[j], unused[i]
	})
	if len(unused) > n {
		unused = unused[:n]
	}

	claimed := make([]domain.Question, 0, len(unused))
	for _, q := range unused {
		q.IsUsed = true
		claimed = append(claimed, *q)
	}
	return claimed, nil
}

func (s *GameStore) QuestionByID(_ context.Context, id int64) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return *q, nil
}

func (s *GameStore) RecordAnswer(_ context.Context, rec domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{participantID: rec.ParticipantID, questionID: rec.QuestionID}
	if _, ok := s.answers[key]; ok {
		return domain.ErrAlreadyAnswered
	}
	s.answers[key] = rec
	return nil
}

func (s *GameStore) Started(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, nil
}

func (s *GameStore) SetStarted(_ context.Context, started bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = started
	return nil
}

// ResetGame wipes everything back to lobby conditions in one critical
// section: no caller can observe scores cleared but the pool not rotated.
func (s *GameStore) ResetGame(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		p.Score = 0
		p.IsReady = false
	}
	for _, q := range s.questions {
		q.IsUsed = false
	}
	s.answers = make(map[answerKey]domain.AnswerRecord)
	s.started = false
	return nil
}

func (s *GameStore) countUnusedLocked() int {
	count := 0
	for _, q := range s.questions {
		if !q.IsUsed {
			count++
		}
	}
	return count
}

// AnswerCount reports how many ledger entries exist, for tests.
func (s *GameStore) AnswerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}
