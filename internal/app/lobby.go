package app

import (
	"sync"

	"trivia-quiz-service/internal/domain"
)

// LobbySnapshot is what lobby subscribers receive on every state change.
type LobbySnapshot struct {
	Players     []domain.LobbyEntry       `json:"players"`
	Started     bool                      `json:"started"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// LobbyHub fans lobby snapshots out to live subscribers (websocket clients).
// Slow consumers get stale updates dropped rather than blocking the sender.
type LobbyHub struct {
	mu          sync.Mutex
	subscribers map[chan LobbySnapshot]struct{}
}

func NewLobbyHub() *LobbyHub {
	return &LobbyHub{subscribers: make(map[chan LobbySnapshot]struct{})}
}

// Subscribe registers a listener and delivers the initial snapshot first.
// The caller must invoke the returned cancel function exactly once.
func (h *LobbyHub) Subscribe(initial LobbySnapshot) (<-chan LobbySnapshot, func()) {
	ch := make(chan LobbySnapshot, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	ch <- initial

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers a snapshot to every subscriber. When a subscriber's
// buffer is full the oldest pending update is evicted first.
func (h *LobbyHub) Broadcast(snapshot LobbySnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
