package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// releaseScript deletes the lock key only when the caller still owns it, so
// an expired lock reacquired by someone else is never released by the
// original holder.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker hands out TTL-bounded distributed locks backed by SET NX EX.
type Locker struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewLocker(rdb *goredis.Client, log *logger.Logger) *Locker {
	return &Locker{rdb: rdb, log: log.With("component", "Locker")}
}

// Lock is one held lock. Release is safe to call more than once.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// Acquire attempts to take the lock; returns (nil, false, nil) when another
// holder has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	if l == nil || l.rdb == nil {
		return nil, false, fmt.Errorf("locker not initialized")
	}
	if key == "" {
		return nil, false, fmt.Errorf("lock key required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{locker: l, key: key, token: token}, true, nil
}

// Extend pushes the TTL out for long-running holders. Fails when ownership
// was lost.
func (lk *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if lk == nil || lk.locker == nil {
		return fmt.Errorf("lock not held")
	}
	n, err := extendScript.Run(ctx, lk.locker.rdb, []string{lk.key}, lk.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("lock %q no longer held", lk.key)
	}
	return nil
}

func (lk *Lock) Release(ctx context.Context) error {
	if lk == nil || lk.locker == nil {
		return nil
	}
	_, err := releaseScript.Run(ctx, lk.locker.rdb, []string{lk.key}, lk.token).Result()
	return err
}
