package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/poolvest/ledger-service/internal/infrastructure/config"
	"github.com/poolvest/ledger-service/pkg/logger"
)

// Locker is the coordination surface the distribution engine needs: a
// TTL-bound advisory lock so only one administrative run executes at a time.
// AcquireLock returns a holder token; release requires the same token, so a
// run that outlives its TTL cannot drop the next holder's lock.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
	IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type redisClient struct {
	client *redis.Client
	logger *logger.Logger
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig, log *logger.Logger) (Locker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info("Connected to redis", "addr", cfg.Addr())

	return &redisClient{client: rdb, logger: log}, nil
}

// releaseScript deletes the lock only when the stored token matches, so an
// expired holder cannot release a lock someone else re-acquired.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// AcquireLock takes the lock with SET NX. An empty token means another holder
// exists.
func (r *redisClient) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock drops the lock when the caller still holds it
func (r *redisClient) ReleaseLock(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// IncrCounter bumps a counter, setting the TTL on first increment. Used for
// duplicate-webhook accounting.
func (r *redisClient) IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return n, nil
}

// Ping checks the connection
func (r *redisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the connection
func (r *redisClient) Close() error {
	return r.client.Close()
}
