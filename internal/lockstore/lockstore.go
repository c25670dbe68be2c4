package lockstore

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ZkAGI/pawpad-rofl/internal/config"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	DefaultTTL = 30 * time.Minute
)

// Locker hands out exclusive, expiring locks. Acquire reports false when the
// key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// New picks the backend from cfg. A redis backend without an address falls
// back to memory.
func New(cfg config.LockConfig, logger *zap.Logger) Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryLocker()
	case BackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			logger.Warn("lock backend redis without redis_addr, using memory")
			return NewMemoryLocker()
		}
		return NewRedisLocker(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		logger.Warn("unknown lock backend, using memory", zap.String("backend", cfg.Backend))
		return NewMemoryLocker()
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
