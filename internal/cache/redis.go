package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/redis/go-redis/v9"
)

// redisCache stores JSON-encoded entries with native key expiry.
type redisCache struct {
	client *redis.Client
	prefix string
}

func (s *redisCache) key(fingerprint string) string {
	return s.prefix + fingerprint
}

// Get implements Cache.
func (s *redisCache) Get(ctx context.Context, fingerprint string) (*domain.AIResponse, bool, error) {
	val, err := s.client.Get(ctx, s.key(fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Response == nil || !time.Now().Before(entry.ExpiresAt) {
		return nil, false, nil
	}
	return entry.Response, true, nil
}

// Put implements Cache.
func (s *redisCache) Put(ctx context.Context, fingerprint string, resp *domain.AIResponse, ttl time.Duration) error {
	if resp == nil || ttl <= 0 {
		return nil
	}
	val, err := json.Marshal(Entry{Response: resp, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(fingerprint), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Len implements Cache.
func (s *redisCache) Len() int { return -1 }

// Close implements Cache.
func (s *redisCache) Close() error {
	return s.client.Close()
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
