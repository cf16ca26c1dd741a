package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-analytics-service/internal/config"
	"github.com/couchcryptid/covid-analytics-service/internal/domain"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore(10, clockwork.NewFakeClock())
	ctx := context.Background()

	_, err := s.Get(ctx, "a")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	b, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(b))
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore(10, nil)
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", in, time.Minute))
	in[0] = 'x'

	out, err := s.Get(ctx, "k")
	require.NoError(t, err)
	out[1] = 'y'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s := NewMemoryStore(2, nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), time.Minute))
	_, err := s.Get(ctx, "a") // a becomes most recent
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "c", []byte("3"), time.Minute))

	_, err = s.Get(ctx, "b")
	require.ErrorIs(t, err, ErrMiss)
	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
	_, err = s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_UpdateRefreshesTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(10, clock)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("1"), time.Minute))
	clock.Advance(50 * time.Second)
	require.NoError(t, s.Set(ctx, "k", []byte("2"), time.Minute))
	clock.Advance(50 * time.Second)

	b, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(b))

	clock.Advance(10 * time.Second)
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 0, s.Len())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	_, err := s.Get(ctx, "covid:sql:abc")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "covid:sql:abc", []byte(`[1,2]`), time.Hour))
	b, err := s.Get(ctx, "covid:sql:abc")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(b))
	assert.Equal(t, time.Hour, mr.TTL("covid:sql:abc"))

	mr.FastForward(time.Hour + time.Second)
	_, err = s.Get(ctx, "covid:sql:abc")
	require.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	t.Cleanup(func() { _ = s.Close() })
	mr.Close()

	ctx := context.Background()
	_, err := s.Get(ctx, "k")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMiss)
	require.Error(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.Error(t, s.Ping(ctx))
}

func TestRedisStore_ServerDownStillServesValues(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	c, _ := newTestCache(store)
	mr.Close()

	produce, calls := countingProducer(domain.String("computed"))
	v, err := c.GetOrSet(context.Background(), "sql", "k", time.Hour, produce)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "computed", s)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore("http://not-redis")
	require.Error(t, err)
}

func TestBadgerStore_InMemory(t *testing.T) {
	s, err := OpenBadgerStore("", nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`), time.Hour))
	b, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(b))

	require.NoError(t, s.Close())
	require.Error(t, s.Ping(ctx))
}

func TestBadgerStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(dir, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	b, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(b))
}

func TestOpenStore(t *testing.T) {
	s, err := OpenStore(config.CacheConfig{Backend: config.CacheMemory, MemorySize: 5}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = OpenStore(config.CacheConfig{Backend: config.CacheRedis, RedisURL: "redis://localhost:6379/0"}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	s, err = OpenStore(config.CacheConfig{Backend: config.CacheBadger}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = OpenStore(config.CacheConfig{Backend: "memcached"}, discardLogger())
	require.Error(t, err)
}
