// Package ratelimit throttles request submissions per chat identity with
// a fixed-window Redis counter.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// New connects to Redis and returns a limiter allowing `limit` submissions
// per chat identity per window.
func New(redisURL string, limit int, window time.Duration) (*Limiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, limit, window), nil
}

// NewWithClient builds a limiter from an existing Redis client.
func NewWithClient(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		prefix: "submit:",
		limit:  limit,
		window: window,
	}
}

// Allow reports whether another submission from chatID fits in the current
// window. Throttling is advisory: a nil limiter, an empty chat identity or
// a Redis failure all allow the submission, so intake never blocks on
// throttle infrastructure.
func (l *Limiter) Allow(ctx context.Context, chatID string) bool {
	if l == nil || l.client == nil || chatID == "" || l.limit <= 0 {
		return true
	}

	key := l.prefix + chatID
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("ratelimit: incr %s: %v", key, err)
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			// A counter without a TTL would never reset and the chat
			// would end up throttled forever. Drop it and let the
			// submission through.
			log.Printf("ratelimit: expire %s: %v", key, err)
			if err := l.client.Del(ctx, key).Err(); err != nil {
				log.Printf("ratelimit: del %s: %v", key, err)
			}
			return true
		}
	}
	if count > int64(l.limit) {
		// Repair a counter that lost its TTL (failure between INCR and
		// EXPIRE) so the window still resets.
		if ttl, err := l.client.TTL(ctx, key).Result(); err == nil && ttl < 0 {
			if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
				log.Printf("ratelimit: expire %s: %v", key, err)
			}
		}
		return false
	}
	return true
}

// Ping checks if Redis is reachable.
func (l *Limiter) Ping(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (l *Limiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
