// Package audiocache holds synthesized speech clips between the moment a
// webhook response references them and the moment the phone provider fetches
// them for playback. Clips are short-lived by nature, so they live in redis
// with a TTL instead of the database.
package audiocache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a clip has expired or never existed.
var ErrNotFound = errors.New("audio clip not found")

const (
	keyPrefix = "audioclip:"

	// clipTTL comfortably covers the gap between returning the call-control
	// document and the provider fetching the clip, plus retries.
	clipTTL = 10 * time.Minute
)

// Cache stores audio clips in redis under random ids.
type Cache struct {
	rdb *redis.Client
}

// New creates a cache backed by the given redis client.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Open connects to redis using a redis:// URL and verifies the connection.
func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Put stores an audio clip and returns its id.
func (c *Cache) Put(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("empty audio clip")
	}
	clipID := uuid.NewString()
	if err := c.rdb.Set(ctx, keyPrefix+clipID, audio, clipTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store audio clip: %w", err)
	}
	return clipID, nil
}

// Get fetches a clip by id. Returns ErrNotFound for expired or unknown ids.
func (c *Cache) Get(ctx context.Context, clipID string) ([]byte, error) {
	audio, err := c.rdb.Get(ctx, keyPrefix+clipID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio clip: %w", err)
	}
	return audio, nil
}
