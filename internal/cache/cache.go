package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache holds short-lived session state in Redis. A miss or a Redis outage
// degrades to an empty context, never to a failed task.
type Cache struct {
	rdb        *redis.Client
	sessionTTL time.Duration
	logger     *zap.Logger
}

// New connects to Redis and verifies the connection. sessionTTL <= 0 falls
// back to one hour.
func New(redisURL string, sessionTTL time.Duration, logger *zap.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	logger.Info("Redis connected")
	return &Cache{rdb: rdb, sessionTTL: sessionTTL, logger: logger}, nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID + ":context"
}

// SessionContext returns the cached conversation context for a session.
func (c *Cache) SessionContext(ctx context.Context, sessionID string) (string, bool) {
	val, err := c.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("session context read failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return "", false
	}
	return val, true
}

// StoreSessionContext writes the session context and refreshes its TTL.
func (c *Cache) StoreSessionContext(ctx context.Context, sessionID, text string) error {
	if err := c.rdb.Set(ctx, sessionKey(sessionID), text, c.sessionTTL).Err(); err != nil {
		return fmt.Errorf("store session context: %w", err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
