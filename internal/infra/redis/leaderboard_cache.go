package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-quiz-service/internal/domain"
)

const leaderboardKey = "game:leaderboard"

// ScoreSource loads the authoritative scoreboard from backing storage.
type ScoreSource interface {
	TopScores(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// LeaderboardCache is a read-through Redis cache over the scoreboard. The
// leaderboard is the hottest read in the lobby, so it is cached as one JSON
// value with a short TTL and explicitly dropped whenever a score changes.
type LeaderboardCache struct {
	client *redis.Client
	source ScoreSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewLeaderboardCache(client *redis.Client, source ScoreSource, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) TopScores(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if raw, err := c.client.Get(ctx, leaderboardKey).Bytes(); err == nil {
		var entries []domain.LeaderboardEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
	}

	result, err, _ := c.sf.Do(leaderboardKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, leaderboardKey).Bytes(); err == nil {
			var entries []domain.LeaderboardEntry
			if err := json.Unmarshal(raw, &entries); err == nil {
				return entries, nil
			}
		}

		entries, err := c.source.TopScores(ctx, limit)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(entries); err == nil {
			// best-effort: a failed cache write just means the next read reloads
			_ = c.client.Set(ctx, leaderboardKey, raw, c.ttlWithJitter()).Err()
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LeaderboardEntry), nil
}

// Invalidate drops the cached scoreboard so the next read sees fresh scores.
func (c *LeaderboardCache) Invalidate(ctx context.Context) {
	_ = c.client.Del(ctx, leaderboardKey).Err()
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
