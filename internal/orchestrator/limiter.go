package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"callpulse/pkg/utils"
)

// Limiter is an optional process-spanning cap on simultaneously active
// calls, on top of the per-campaign concurrency limit. Acquire returning
// false defers the dial; errors fail open.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// NopLimiter disables the global cap.
type NopLimiter struct{}

func (NopLimiter) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (NopLimiter) Release(ctx context.Context)               {}

// RedisLimiter counts active calls across all instances in Redis. The slot
// counter carries a TTL so crashed instances cannot leak slots forever.
type RedisLimiter struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
	log   *slog.Logger
}

func NewRedisLimiter(rdb *redis.Client, limit int, log *slog.Logger) *RedisLimiter {
	return &RedisLimiter{
		rdb:   rdb,
		key:   "callpulse:dialer:active",
		limit: limit,
		ttl:   time.Hour,
		log:   log,
	}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireDialSlot(ctx, l.rdb, l.key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) {
	if err := utils.ReleaseDialSlot(ctx, l.rdb, l.key); err != nil {
		l.log.Warn("dial slot release failed", "err", err)
	}
}
