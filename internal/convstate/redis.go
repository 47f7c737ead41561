package convstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "callpulse:conv:"

// DefaultTTL bounds how long an abandoned context can linger if a crash
// prevents the normal purge at call end. Live calls are far shorter.
const DefaultTTL = 2 * time.Hour

// Redis implements Store on a shared Redis instance, which keeps contexts
// visible to every process instance serving webhook traffic.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func convKey(callID string) string { return keyPrefix + callID }

func (r *Redis) Insert(ctx context.Context, c Context) error {
	if c.CallID == "" {
		return fmt.Errorf("convstate: call id is required")
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, convKey(c.CallID), b, r.ttl).Err()
}

func (r *Redis) GetByCallID(ctx context.Context, callID string) (Context, error) {
	b, err := r.rdb.Get(ctx, convKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Context{}, ErrNotFound
		}
		return Context{}, err
	}
	var c Context
	if err := json.Unmarshal(b, &c); err != nil {
		return Context{}, err
	}
	return c, nil
}

func (r *Redis) UpdateHistory(ctx context.Context, callID string, history []Turn, now time.Time) error {
	c, err := r.GetByCallID(ctx, callID)
	if err != nil {
		return err
	}
	c.History = history
	c.UpdatedAt = now
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	// Refresh the TTL; the context stays alive as long as the call does.
	return r.rdb.Set(ctx, convKey(callID), b, r.ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, callID string) error {
	return r.rdb.Del(ctx, convKey(callID)).Err()
}
