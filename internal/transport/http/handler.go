package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/auth"
	"trivia-quiz-service/internal/domain"
)

type ctxKey int

const identityKey ctxKey = 0

// API exposes the game service over REST plus a websocket lobby feed.
type API struct {
	service *app.GameService
	tokens  *auth.TokenManager
	ws      *LobbyFeed
}

func NewAPI(service *app.GameService, tokens *auth.TokenManager) *API {
	return &API{service: service, tokens: tokens, ws: NewLobbyFeed(service)}
}

// Router builds the route table. Everything under /api except register and
// login requires a bearer token.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", a.register).Methods(http.MethodPost)
	api.HandleFunc("/login", a.login).Methods(http.MethodPost)

	secure := api.NewRoute().Subrouter()
	secure.Use(a.authenticate)
	secure.HandleFunc("/quiz/questions", a.drawQuestions).Methods(http.MethodPost)
	secure.HandleFunc("/quiz/answer", a.submitAnswer).Methods(http.MethodPost)
	secure.HandleFunc("/score", a.getScore).Methods(http.MethodGet)
	secure.HandleFunc("/leaderboard", a.leaderboard).Methods(http.MethodGet)
	secure.HandleFunc("/players/ready", a.setReady).Methods(http.MethodPost)
	secure.HandleFunc("/players/ready-list", a.listParticipants).Methods(http.MethodGet)
	secure.HandleFunc("/game/start", a.startGame).Methods(http.MethodPost)
	secure.HandleFunc("/game/status", a.gameStatus).Methods(http.MethodGet)
	secure.HandleFunc("/game/reset", a.resetGame).Methods(http.MethodPost)
	secure.HandleFunc("/lobby/ws", a.ws.Serve).Methods(http.MethodGet)
	return r
}

// authenticate verifies the bearer token and stashes the identity on the
// request context. Websocket clients cannot set headers, so a token query
// parameter is accepted as a fallback.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		identity, err := a.tokens.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) (auth.Identity, bool) {
	identity, ok := r.Context().Value(identityKey).(auth.Identity)
	return identity, ok
}

type registerRequest struct {
	Name     string `json:"name"`
	Pseudo   string `json:"pseudo"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := a.service.Register(r.Context(), app.RegisterInput{
		Name:     req.Name,
		Pseudo:   req.Pseudo,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "registration successful",
		"id":       p.ID,
		"is_admin": p.IsAdmin,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := a.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	token, err := a.tokens.Issue(p)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "login successful",
		"participantId": p.ID,
		"name":          p.Name,
		"pseudo":        p.Pseudo,
		"is_admin":      p.IsAdmin,
		"token":         token,
	})
}

type drawRequest struct {
	Count int `json:"count"`
}

func (a *API) drawQuestions(w http.ResponseWriter, r *http.Request) {
	var req drawRequest
	if r.Body != nil {
		// An empty body means the default batch size.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	batch, err := a.service.DrawBatch(r.Context(), req.Count)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type answerRequest struct {
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer"`
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := a.service.SubmitAnswer(r.Context(), identity.ParticipantID, req.QuestionID, req.Answer)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) getScore(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	score, err := a.service.GetScore(r.Context(), identity.ParticipantID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"score": score})
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.Leaderboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) setReady(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.service.SetReady(r.Context(), identity.ParticipantID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"player_id": identity.ParticipantID,
		"message":   "ready status updated",
	})
}

func (a *API) listParticipants(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.ListParticipants(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) startGame(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.service.Start(r.Context(), identity.ParticipantID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "game started"})
}

func (a *API) gameStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.Status(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) resetGame(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.service.Reset(r.Context(), identity.ParticipantID); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "game fully reset"})
}

// writeServiceError maps domain errors onto HTTP statuses. Storage failures
// stay opaque: the caller learns it can retry, nothing more.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrParticipantNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyAnswered), errors.Is(err, domain.ErrDuplicateParticipant):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
