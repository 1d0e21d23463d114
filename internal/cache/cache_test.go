package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sampleResponse() *domain.AIResponse {
	return &domain.AIResponse{
		Content:    "DeFi is open finance built on smart contracts.",
		Type:       domain.ResponseEducation,
		Confidence: 0.3,
		Metadata:   domain.ResponseMetadata{Intent: domain.IntentEducation, Provider: "openai", Model: "gpt-4o-mini"},
	}
}

func TestFingerprintNormalizes(t *testing.T) {
	t.Parallel()

	a := Fingerprint("Explain DeFi")
	assert.Equal(t, a, Fingerprint("  explain   defi\n"))
	assert.Equal(t, a, Fingerprint("EXPLAIN DEFI"))
	assert.NotEqual(t, a, Fingerprint("Explain DeFi?"))
	assert.Len(t, a, 64)
}

func TestMemoryGetPut(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c, err := New(DriverMemory, WithSweepInterval(0), withClock(clock.Now))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	fp := Fingerprint("Explain DeFi")

	_, ok, err := c.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, fp, sampleResponse(), 5*time.Minute))
	got, ok, err := c.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleResponse().Content, got.Content)
	assert.Equal(t, "gpt-4o-mini", got.Metadata.Model)

	clock.Advance(5*time.Minute - time.Second)
	_, ok, _ = c.Get(ctx, fp)
	assert.True(t, ok, "entry should live until ttl")

	clock.Advance(time.Second)
	_, ok, _ = c.Get(ctx, fp)
	assert.False(t, ok, "expired entry must not be returned")
	assert.Equal(t, 0, c.Len(), "expired entry should be evicted on read")
}

func TestMemoryReturnsCopies(t *testing.T) {
	t.Parallel()

	c, err := New(DriverMemory, WithSweepInterval(0))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	resp := sampleResponse()
	require.NoError(t, c.Put(ctx, "k", resp, time.Minute))
	resp.Content = "mutated after put"

	got, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)
	got.Metadata.Cached = true

	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, sampleResponse().Content, again.Content)
	assert.False(t, again.Metadata.Cached)
}

func TestMemorySweep(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newMemory(&options{now: clock.Now})
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "a", sampleResponse(), time.Minute))
	require.NoError(t, c.Put(ctx, "b", sampleResponse(), time.Hour))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.sweep())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryIgnoresNonPositiveTTL(t *testing.T) {
	t.Parallel()

	c, err := New(DriverMemory, WithSweepInterval(0))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put(context.Background(), "k", sampleResponse(), 0))
	assert.Equal(t, 0, c.Len())
}

func TestNewValidatesDriver(t *testing.T) {
	t.Parallel()

	_, err := New(DriverRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New("memcached")
	assert.ErrorIs(t, err, ErrInvalidDriver)
}

func TestRedisSurfacesBackendErrors(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c, err := New(DriverRedis, WithRedisClient(client))
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, -1, c.Len())
}

func TestRedisKeyPrefix(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	c, err := New(DriverRedis, WithRedisClient(client))
	require.NoError(t, err)
	assert.Equal(t, "response:abc", c.(*redisCache).key("abc"))

	c, err = New(DriverRedis, WithRedisClient(client), WithKeyPrefix("tenant:"))
	require.NoError(t, err)
	assert.Equal(t, "tenant:abc", c.(*redisCache).key("abc"))
}
