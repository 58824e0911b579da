package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
)

// plainHasher keeps registration fast in unit tests; bcrypt is exercised in
// the auth package and the integration test.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }
func (plainHasher) Compare(hash, password string) error {
	if hash != "plain:"+password {
		return errors.New("mismatch")
	}
	return nil
}

const adminEmail = "admin@quiz.com"

func newTestService(t *testing.T, questions ...domain.Question) (*app.GameService, *memory.GameStore) {
	t.Helper()
	store := memory.NewGameStore()
	store.SeedQuestions(questions)
	return app.NewGameService(store, nil, plainHasher{}, adminEmail), store
}

func register(t *testing.T, service *app.GameService, pseudo, email string) domain.Participant {
	t.Helper()
	p, err := service.Register(context.Background(), app.RegisterInput{
		Name:     pseudo,
		Pseudo:   pseudo,
		Email:    email,
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("register %s: %v", pseudo, err)
	}
	return p
}

func question(id int64, difficulty, correct string) domain.Question {
	return domain.Question{
		ID:               id,
		Prompt:           "prompt",
		Category:         "General",
		Difficulty:       difficulty,
		CorrectAnswer:    correct,
		IncorrectAnswers: []string{"wrong-a", "wrong-b", "wrong-c"},
	}
}

func TestRegisterValidationAndAdminRule(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, app.RegisterInput{Pseudo: "x", Email: "x@y.z", Password: "pw"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing name, got %v", err)
	}

	admin := register(t, service, "boss", adminEmail)
	if !admin.IsAdmin {
		t.Fatalf("expected admin flag for %s", adminEmail)
	}
	player := register(t, service, "alice", "alice@example.com")
	if player.IsAdmin {
		t.Fatalf("expected regular participant, got admin")
	}

	if _, err := service.Register(ctx, app.RegisterInput{
		Name: "Alice Again", Pseudo: "alice", Email: "other@example.com", Password: "pw",
	}); !errors.Is(err, domain.ErrDuplicateParticipant) {
		t.Fatalf("expected duplicate pseudo rejection, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	register(t, service, "alice", "alice@example.com")

	p, err := service.Login(ctx, "Alice@Example.com ", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if p.Pseudo != "alice" {
		t.Fatalf("expected alice, got %q", p.Pseudo)
	}

	if _, err := service.Login(ctx, "alice@example.com", "nope"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := service.Login(ctx, "ghost@example.com", "secret"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestDrawBatchHidesCorrectAnswerPlacement(t *testing.T) {
	service, _ := newTestService(t, question(1, domain.DifficultyEasy, "Paris"))
	batch, err := service.DrawBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected 1 question, got %d", len(batch))
	}
	if len(batch[0].Answers) != 4 {
		t.Fatalf("expected correct answer shuffled in with 3 distractors, got %v", batch[0].Answers)
	}
	found := false
	for _, a := range batch[0].Answers {
		if a == "Paris" {
			found = true
		}
	}
	if !found {
		t.Fatalf("correct answer missing from shuffled list: %v", batch[0].Answers)
	}
}

func TestDrawBatchDropsCollidingDistractor(t *testing.T) {
	service, _ := newTestService(t, domain.Question{
		ID:               1,
		Prompt:           "capital of France",
		Difficulty:       domain.DifficultyEasy,
		CorrectAnswer:    "Paris",
		IncorrectAnswers: []string{" paris ", "Lyon"},
	})
	batch, err := service.DrawBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected 1 question, got %d", len(batch))
	}
	occurrences := 0
	for _, a := range batch[0].Answers {
		if domain.NormalizeAnswer(a) == "paris" {
			occurrences++
		}
	}
	if occurrences != 1 {
		t.Fatalf("correct answer appears %d times in %v", occurrences, batch[0].Answers)
	}
	if len(batch[0].Answers) != 2 {
		t.Fatalf("expected the colliding distractor dropped, got %v", batch[0].Answers)
	}
}

func TestDrawBatchEmptyPool(t *testing.T) {
	service, _ := newTestService(t)
	batch, err := service.DrawBatch(context.Background(), 5)
	if err != nil {
		t.Fatalf("draw on empty pool: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("expected empty batch, got %d", len(batch))
	}
}

// Scenario A: three questions, two draws of two; the second draw needs a
// pool rotation because only one unused question remains.
func TestDrawBatchRotatesExhaustedPool(t *testing.T) {
	service, _ := newTestService(t,
		question(1, domain.DifficultyEasy, "a"),
		question(2, domain.DifficultyEasy, "b"),
		question(3, domain.DifficultyEasy, "c"),
	)
	ctx := context.Background()

	first, err := service.DrawBatch(ctx, 2)
	if err != nil {
		t.Fatalf("first draw: %v", err)
	}
	if len(first) != 2 || first[0].ID == first[1].ID {
		t.Fatalf("expected 2 distinct questions, got %+v", first)
	}

	second, err := service.DrawBatch(ctx, 2)
	if err != nil {
		t.Fatalf("second draw: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("expected rotation to refill the pool, got %d questions", len(second))
	}

	third, err := service.DrawBatch(ctx, 3)
	if err != nil {
		t.Fatalf("third draw: %v", err)
	}
	if len(third) != 3 {
		t.Fatalf("expected full pool after another rotation, got %d", len(third))
	}
}

// Scenario B: a correct easy answer earns exactly one point, once.
func TestSubmitAnswerScoresOnce(t *testing.T) {
	service, _ := newTestService(t, question(7, domain.DifficultyEasy, "Paris"))
	ctx := context.Background()
	p := register(t, service, "alice", "alice@example.com")

	result, err := service.SubmitAnswer(ctx, p.ID, 7, "  paris ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.IsCorrect || result.ScoreEarned != 1 || result.CorrectAnswer != "Paris" {
		t.Fatalf("unexpected result: %+v", result)
	}
	score, err := service.GetScore(ctx, p.ID)
	if err != nil || score != 1 {
		t.Fatalf("expected score 1, got %d (%v)", score, err)
	}

	if _, err := service.SubmitAnswer(ctx, p.ID, 7, "Paris"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
	score, _ = service.GetScore(ctx, p.ID)
	if score != 1 {
		t.Fatalf("duplicate submission changed score to %d", score)
	}
}

func TestSubmitAnswerDifficultyWeights(t *testing.T) {
	service, _ := newTestService(t,
		question(1, domain.DifficultyEasy, "a"),
		question(2, domain.DifficultyMedium, "b"),
		question(3, domain.DifficultyHard, "c"),
		question(4, "legendary", "d"),
	)
	ctx := context.Background()
	p := register(t, service, "alice", "alice@example.com")

	expected := map[int64]int{1: 1, 2: 2, 3: 3, 4: 1}
	answers := map[int64]string{1: "a", 2: "b", 3: "c", 4: "d"}
	total := 0
	for qid, answer := range answers {
		result, err := service.SubmitAnswer(ctx, p.ID, qid, answer)
		if err != nil {
			t.Fatalf("submit q%d: %v", qid, err)
		}
		if result.ScoreEarned != expected[qid] {
			t.Fatalf("q%d: expected %d points, got %d", qid, expected[qid], result.ScoreEarned)
		}
		total += result.ScoreEarned
	}
	score, _ := service.GetScore(ctx, p.ID)
	if score != total {
		t.Fatalf("expected score %d, got %d", total, score)
	}
}

func TestSubmitAnswerWrongEarnsNothing(t *testing.T) {
	service, _ := newTestService(t, question(1, domain.DifficultyHard, "right"))
	ctx := context.Background()
	p := register(t, service, "alice", "alice@example.com")

	result, err := service.SubmitAnswer(ctx, p.ID, 1, "wrong-a")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.IsCorrect || result.ScoreEarned != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if score, _ := service.GetScore(ctx, p.ID); score != 0 {
		t.Fatalf("wrong answer changed score to %d", score)
	}
}

func TestSubmitAnswerUnknownQuestion(t *testing.T) {
	service, _ := newTestService(t)
	p := register(t, service, "alice", "alice@example.com")
	if _, err := service.SubmitAnswer(context.Background(), p.ID, 99, "x"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestConcurrentDuplicateSubmissions(t *testing.T) {
	service, store := newTestService(t, question(1, domain.DifficultyMedium, "right"))
	ctx := context.Background()
	p := register(t, service, "alice", "alice@example.com")

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.SubmitAnswer(ctx, p.ID, 1, "right")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAlreadyAnswered):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful submission, got %d", succeeded)
	}
	if store.AnswerCount() != 1 {
		t.Fatalf("expected one ledger entry, got %d", store.AnswerCount())
	}
	if score, _ := service.GetScore(ctx, p.ID); score != 2 {
		t.Fatalf("expected score credited once (2 points), got %d", score)
	}
}

func TestSetReadyIdempotent(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	p := register(t, service, "alice", "alice@example.com")

	if err := service.SetReady(ctx, p.ID); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if err := service.SetReady(ctx, p.ID); err != nil {
		t.Fatalf("second set ready: %v", err)
	}
	entries, err := service.ListParticipants(ctx)
	if err != nil || len(entries) != 1 || !entries[0].IsReady {
		t.Fatalf("expected one ready participant, got %+v (%v)", entries, err)
	}

	if err := service.SetReady(ctx, 999); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
}

func TestListParticipantsRegistrationOrder(t *testing.T) {
	service, _ := newTestService(t)
	register(t, service, "zoe", "zoe@example.com")
	register(t, service, "alice", "alice@example.com")
	register(t, service, "bob", "bob@example.com")

	entries, err := service.ListParticipants(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"zoe", "alice", "bob"}
	for i, pseudo := range want {
		if entries[i].Pseudo != pseudo {
			t.Fatalf("expected %v, got %+v", want, entries)
		}
	}
}

// Scenario C: a non-admin cannot start the game and the flag stays false.
func TestStartRequiresAdmin(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	admin := register(t, service, "boss", adminEmail)
	player := register(t, service, "alice", "alice@example.com")

	if err := service.Start(ctx, player.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	status, _ := service.Status(ctx)
	if status.Started {
		t.Fatalf("forbidden start flipped the flag")
	}

	if err := service.Start(ctx, admin.ID); err != nil {
		t.Fatalf("admin start: %v", err)
	}
	status, _ = service.Status(ctx)
	if !status.Started {
		t.Fatalf("expected started game")
	}
}

// Scenario D: reset wipes scores, readiness, the started flag, and the pool.
func TestResetWipesGameState(t *testing.T) {
	service, store := newTestService(t, question(1, domain.DifficultyEasy, "a"))
	ctx := context.Background()
	admin := register(t, service, "boss", adminEmail)
	player := register(t, service, "alice", "alice@example.com")

	if _, err := service.SubmitAnswer(ctx, player.ID, 1, "a"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := service.SetReady(ctx, player.ID); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := service.Start(ctx, admin.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := service.Reset(ctx, player.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden reset, got %v", err)
	}
	if err := service.Reset(ctx, admin.ID); err != nil {
		t.Fatalf("admin reset: %v", err)
	}

	if score, _ := service.GetScore(ctx, player.ID); score != 0 {
		t.Fatalf("expected score 0 after reset, got %d", score)
	}
	entries, _ := service.ListParticipants(ctx)
	for _, e := range entries {
		if e.IsReady {
			t.Fatalf("expected cleared ready flags, got %+v", entries)
		}
	}
	status, _ := service.Status(ctx)
	if status.Started {
		t.Fatalf("expected stopped game after reset")
	}
	if store.AnswerCount() != 0 {
		t.Fatalf("expected empty ledger after reset, got %d entries", store.AnswerCount())
	}
	// the pool rotated, so the question can be answered again
	if _, err := service.SubmitAnswer(ctx, player.ID, 1, "a"); err != nil {
		t.Fatalf("resubmit after reset: %v", err)
	}
}

func TestLeaderboardOrderingAndLimit(t *testing.T) {
	service, store := newTestService(t)
	ctx := context.Background()

	pseudos := []string{"mallory", "alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi", "ivan", "judy", "kate"}
	ids := make(map[string]int64, len(pseudos))
	for _, pseudo := range pseudos {
		p := register(t, service, pseudo, pseudo+"@example.com")
		ids[pseudo] = p.ID
	}
	// alice and bob tie on 5; everyone else gets distinct lower scores
	_ = store.AddScore(ctx, ids["alice"], 5)
	_ = store.AddScore(ctx, ids["bob"], 5)
	for i, pseudo := range pseudos[3:] {
		_ = store.AddScore(ctx, ids[pseudo], 4-i%4)
	}

	entries, err := service.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected top-10, got %d entries", len(entries))
	}
	if entries[0].Pseudo != "alice" || entries[1].Pseudo != "bob" {
		t.Fatalf("expected alice before bob on tie, got %+v", entries[:2])
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Score > entries[i-1].Score {
			t.Fatalf("leaderboard not sorted: %+v", entries)
		}
		if entries[i].Score == entries[i-1].Score && entries[i].Pseudo < entries[i-1].Pseudo {
			t.Fatalf("tie not broken by pseudo: %+v", entries)
		}
	}
}

func TestSubscribeReceivesLobbyUpdates(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	admin := register(t, service, "boss", adminEmail)

	ch, cancel, err := service.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if len(initial.Players) != 1 || initial.Started {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	if err := service.Start(ctx, admin.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	update := <-ch
	if !update.Started {
		t.Fatalf("expected started snapshot, got %+v", update)
	}
}
