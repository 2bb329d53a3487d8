package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"filescout/internal/config"
	"filescout/internal/observability"
)

// releaseScript deletes the lease only if this instance still holds it, so a
// slow worker cannot release a lease that already expired and was re-acquired
// by someone else.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLease implements Lease with SET NX plus a TTL. The TTL is the crash
// backstop: a dead holder's lease expires on its own.
type RedisLease struct {
	client     *redis.Client
	instanceID string
	ttl        time.Duration
	logger     observability.Logger
	metrics    observability.Metrics
}

func NewRedisLease(ctx context.Context, cfg config.LeaseConfig, instanceID string, logger observability.Logger, metrics observability.Metrics) (*RedisLease, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis lease initialized", "addr", cfg.Addr, "ttl", cfg.TTL)

	return &RedisLease{
		client:     client,
		instanceID: instanceID,
		ttl:        cfg.TTL,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

func (l *RedisLease) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, leaseKey(key), l.instanceID, l.ttl).Result()
	if err != nil {
		l.metrics.IncrementCounter("lease.errors", map[string]string{"operation": "acquire"})
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		l.metrics.IncrementCounter("lease.acquired", nil)
	} else {
		l.metrics.IncrementCounter("lease.contended", nil)
	}
	return ok, nil
}

func (l *RedisLease) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{leaseKey(key)}, l.instanceID).Err(); err != nil {
		l.metrics.IncrementCounter("lease.errors", map[string]string{"operation": "release"})
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (l *RedisLease) Close() error {
	return l.client.Close()
}

func leaseKey(key string) string {
	return "filescout:lease:" + key
}

var _ Lease = (*RedisLease)(nil)
