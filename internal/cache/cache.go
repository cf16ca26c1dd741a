// Package cache provides best-effort get-or-compute caching of JSON values in
// front of a pluggable Store. Store failures never reach the caller: a failed
// read is a miss and a failed write is logged.
package cache

import (
	"context"
	"crypto/sha1" //nolint:gosec // fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/covid-analytics-service/internal/domain"
	"github.com/couchcryptid/covid-analytics-service/internal/observability"
)

// DefaultPrefix is the storage key prefix used when none is configured.
const DefaultPrefix = "covid"

// ProduceTimeout bounds a shared producer call. The call is detached from the
// caller that started it, so it needs its own deadline.
const ProduceTimeout = 5 * time.Minute

// Producer computes the value for a missing entry.
type Producer func(ctx context.Context) (domain.Value, error)

// Cache derives storage keys from arbitrary key structures and fronts a Store.
type Cache struct {
	store          Store
	prefix         string
	opTimeout      time.Duration
	produceTimeout time.Duration
	group          singleflight.Group
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// New creates a Cache over store. A non-positive opTimeout leaves store calls
// bounded only by the caller's context.
func New(store Store, prefix string, opTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{
		store:          store,
		prefix:         prefix,
		opTimeout:      opTimeout,
		produceTimeout: ProduceTimeout,
		logger:         logger,
		metrics:        metrics,
	}
}

// Fingerprint returns the hex SHA-1 of the canonical JSON encoding of key.
// Keys that are equal as unordered mappings produce the same fingerprint.
func Fingerprint(key any) (string, error) {
	v, err := domain.FromAny(key)
	if err != nil {
		return "", fmt.Errorf("convert cache key: %w", err)
	}
	b, err := v.Canonical()
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := sha1.Sum(b) //nolint:gosec // fingerprint
	return hex.EncodeToString(sum[:]), nil
}

// Key returns the storage key "<prefix>:<namespace>:<fingerprint>".
func (c *Cache) Key(namespace string, key any) (string, error) {
	digest, err := Fingerprint(key)
	if err != nil {
		return "", err
	}
	return c.prefix + ":" + namespace + ":" + digest, nil
}

// GetOrSet returns the cached value for (namespace, key) or calls produce,
// stores its result for ttl, and returns it. Concurrent misses on the same
// storage key share one produce call, which keeps running when the caller
// that started it goes away. Producer errors are returned and nothing is
// cached.
func (c *Cache) GetOrSet(ctx context.Context, namespace string, key any, ttl time.Duration, produce Producer) (domain.Value, error) {
	storageKey, err := c.Key(namespace, key)
	if err != nil {
		c.logger.Warn("cache key rejected, bypassing cache", "namespace", namespace, "error", err)
		c.metrics.CacheLookups.WithLabelValues(namespace, "bypass").Inc()
		c.metrics.CacheErrors.WithLabelValues("encode").Inc()
		return produce(ctx)
	}

	if v, ok := c.lookup(ctx, storageKey); ok {
		c.metrics.CacheLookups.WithLabelValues(namespace, "hit").Inc()
		return v, nil
	}
	c.metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()

	// The shared call runs without any single caller's cancellation; each
	// caller stops waiting when its own context ends.
	ch := c.group.DoChan(storageKey, func() (any, error) {
		return c.produceAndSave(ctx, storageKey, ttl, produce)
	})
	select {
	case <-ctx.Done():
		return domain.Value{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Value{}, res.Err
		}
		return res.Val.(domain.Value), nil
	}
}

func (c *Cache) produceAndSave(ctx context.Context, storageKey string, ttl time.Duration, produce Producer) (_ any, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.produceTimeout)
	defer cancel()

	// DoChan re-panics on a fresh goroutine, out of reach of any recovery
	// middleware.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache producer panic: %v", r)
		}
	}()

	v, err := produce(ctx)
	if err != nil {
		return nil, err
	}
	c.save(ctx, storageKey, v, ttl)
	return v, nil
}

// Ping reports whether the backing store is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.store.Ping(ctx)
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) lookup(ctx context.Context, storageKey string) (domain.Value, bool) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	b, err := c.store.Get(ctx, storageKey)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache read failed", "key", storageKey, "error", err)
			c.metrics.CacheErrors.WithLabelValues("get").Inc()
		}
		return domain.Value{}, false
	}

	var v domain.Value
	if err := v.UnmarshalJSON(b); err != nil {
		c.logger.Warn("cached entry undecodable", "key", storageKey, "error", err)
		c.metrics.CacheErrors.WithLabelValues("decode").Inc()
		return domain.Value{}, false
	}
	return v, true
}

func (c *Cache) save(ctx context.Context, storageKey string, v domain.Value, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	b, err := v.MarshalJSON()
	if err != nil {
		c.logger.Warn("cache value not encodable", "key", storageKey, "error", err)
		c.metrics.CacheErrors.WithLabelValues("encode").Inc()
		return
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.store.Set(ctx, storageKey, b, ttl); err != nil {
		c.logger.Warn("cache write failed", "key", storageKey, "error", err)
		c.metrics.CacheErrors.WithLabelValues("set").Inc()
	}
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}
