package cache

import (
	"fmt"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Lock backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// PairLockerFactory creates pair lockers based on configuration
type PairLockerFactory struct {
	syncConfig            config.SyncConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// PairLockerFactoryOption is a functional option for configuring the factory
type PairLockerFactoryOption func(*PairLockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) PairLockerFactoryOption {
	return func(f *PairLockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-process arena when Redis is unavailable
// Default is false: a multi-instance deployment must not silently lose cross-instance locking
func WithInMemoryFallback(allow bool) PairLockerFactoryOption {
	return func(f *PairLockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewPairLockerFactory creates a new factory
func NewPairLockerFactory(syncCfg config.SyncConfig, redisCfg config.RedisConfig, opts ...PairLockerFactoryOption) *PairLockerFactory {
	f := &PairLockerFactory{
		syncConfig:  syncCfg,
		redisConfig: redisCfg,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisLocker creates a Redis-based pair locker
func (f *PairLockerFactory) CreateRedisLocker() (*RedisPairLocker, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	locker, err := NewRedisPairLocker(redisCfg, f.syncConfig.LockTTL, WithLockLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis pair locker: %w", err)
	}

	return locker, nil
}

// CreateLocker creates the locker selected by sync.lock_backend. The returned
// close function releases backend resources and is never nil.
func (f *PairLockerFactory) CreateLocker() (marketplaceapp.PairLocker, func() error, error) {
	noop := func() error { return nil }

	switch f.syncConfig.LockBackend {
	case "", BackendMemory:
		f.logger.Info("using in-process pair lock arena")
		return marketplaceapp.NewPairLockArena(), noop, nil
	case BackendRedis:
	default:
		return nil, noop, fmt.Errorf("unknown lock backend %q", f.syncConfig.LockBackend)
	}

	locker, err := f.CreateRedisLocker()
	if err == nil {
		f.logger.Info("using Redis pair locker", zap.String("addr", f.redisConfig.Addr()))
		return locker, locker.Close, nil
	}

	if !f.allowInMemoryFallback {
		return nil, noop, fmt.Errorf("Redis required for pair locking but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-process pair locks. "+
		"Concurrent instances may work on the same pair.",
		zap.Error(err),
	)
	return marketplaceapp.NewPairLockArena(), noop, nil
}
