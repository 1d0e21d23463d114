// Package cache stores generated responses keyed by a fingerprint of the message text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidConfig is returned when a driver is missing required options.
	ErrInvalidConfig = errors.New("invalid cache configuration")
	// ErrInvalidDriver is returned for an unknown driver name.
	ErrInvalidDriver = errors.New("invalid cache driver")
)

// Driver names a cache backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Cache is an identity-agnostic response cache.
type Cache interface {
	// Get returns the cached response, or ok=false when absent or expired.
	Get(ctx context.Context, fingerprint string) (resp *domain.AIResponse, ok bool, err error)
	// Put stores resp until ttl elapses.
	Put(ctx context.Context, fingerprint string, resp *domain.AIResponse, ttl time.Duration) error
	// Len reports the number of live entries, or -1 when the backend cannot tell cheaply.
	Len() int
	Close() error
}

// Entry is a stored response with its expiry.
type Entry struct {
	Response  *domain.AIResponse `json:"response"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// Fingerprint hashes the normalized message text. Case and runs of whitespace
// do not affect the result.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Option configures New.
type Option func(*options)

type options struct {
	redisClient *redis.Client
	keyPrefix   string
	sweepEvery  time.Duration
	now         func() time.Time
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) {
		o.redisClient = client
	}
}

// WithKeyPrefix overrides the redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithSweepInterval sets how often the memory driver evicts expired entries.
// Zero disables the background sweep; expired entries are still never returned.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		o.sweepEvery = d
	}
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a cache for the given driver.
func New(driver Driver, opts ...Option) (Cache, error) {
	o := &options{
		keyPrefix:  "response:",
		sweepEvery: time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	switch driver {
	case DriverMemory, "":
		return newMemory(o), nil
	case DriverRedis:
		if o.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisCache{client: o.redisClient, prefix: o.keyPrefix}, nil
	default:
		return nil, ErrInvalidDriver
	}
}
