package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPairLocker implements PairLocker with a Redis lock per pair, so that
// several server instances never work on the same pair at once.
// The lock expires after ttl if its holder dies without releasing it.
type RedisPairLocker struct {
	client       *redis.Client
	keyPrefix    string
	ttl          time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisPairLockerOption is a functional option for configuring RedisPairLocker
type RedisPairLockerOption func(*RedisPairLocker)

// WithKeyPrefix sets the key prefix of lock entries
func WithKeyPrefix(prefix string) RedisPairLockerOption {
	return func(l *RedisPairLocker) {
		if prefix != "" {
			l.keyPrefix = prefix
		}
	}
}

// WithPollInterval sets how often a blocked Lock retries
func WithPollInterval(d time.Duration) RedisPairLockerOption {
	return func(l *RedisPairLocker) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithLockLogger sets the logger
func WithLockLogger(logger *zap.Logger) RedisPairLockerOption {
	return func(l *RedisPairLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisPairLocker connects to Redis and creates a locker
func NewRedisPairLocker(cfg RedisConfig, ttl time.Duration, opts ...RedisPairLockerOption) (*RedisPairLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisPairLockerWithClient(client, ttl, opts...), nil
}

// NewRedisPairLockerWithClient creates a locker with an existing Redis client
func NewRedisPairLockerWithClient(client *redis.Client, ttl time.Duration, opts ...RedisPairLockerOption) *RedisPairLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	l := &RedisPairLocker{
		client:       client,
		keyPrefix:    "crosslist:pairlock:",
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until the pair is free or ctx is done
func (l *RedisPairLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to acquire pair lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}, nil
}

// release runs on its own context: the request context may already be done
func (l *RedisPairLocker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("failed to release pair lock, it will expire",
			zap.String("key", redisKey),
			zap.Duration("ttl", l.ttl),
			zap.Error(err),
		)
	}
}

// Close closes the Redis client
func (l *RedisPairLocker) Close() error {
	return l.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (l *RedisPairLocker) GetClient() *redis.Client {
	return l.client
}

// Ensure RedisPairLocker implements PairLocker
var _ marketplaceapp.PairLocker = (*RedisPairLocker)(nil)
