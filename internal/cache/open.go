package cache

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-analytics-service/internal/config"
)

// OpenStore builds the backing store selected by cfg.Backend.
func OpenStore(cfg config.CacheConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.CacheRedis:
		return NewRedisStore(cfg.RedisURL)
	case config.CacheMemory:
		return NewMemoryStore(cfg.MemorySize, clockwork.NewRealClock()), nil
	case config.CacheBadger:
		return OpenBadgerStore(cfg.BadgerPath, logger)
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}
