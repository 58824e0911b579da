package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"trivia-quiz-service/internal/app"
)

// LobbyFeed streams lobby snapshots (roster, started flag, leaderboard) to
// websocket clients so they do not have to poll the status endpoints.
type LobbyFeed struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewLobbyFeed(service *app.GameService) *LobbyFeed {
	return &LobbyFeed{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string            `json:"type"`
	Payload app.LobbySnapshot `json:"payload"`
}

// Serve upgrades the request and pushes snapshots until the client hangs up.
// The feed is one-way; client frames are read only to detect the close.
func (f *LobbyFeed) Serve(w http.ResponseWriter, r *http.Request) {
	updates, cancel, err := f.service.Subscribe(r.Context())
	if err != nil {
		http.Error(w, "lobby unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "lobby", Payload: snapshot}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}
