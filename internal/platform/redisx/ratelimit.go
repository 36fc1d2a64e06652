package redisx

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateCounter is a fixed-window counter: one Redis key per (subject,
// window), expired automatically at the window boundary.
type RateCounter struct {
	rdb    *goredis.Client
	prefix string
	window time.Duration
}

func NewRateCounter(rdb *goredis.Client, prefix string, window time.Duration) *RateCounter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateCounter{rdb: rdb, prefix: prefix, window: window}
}

// Incr bumps the subject's counter for the current window and returns the
// new count.
func (c *RateCounter) Incr(ctx context.Context, subject string) (int64, error) {
	if c == nil || c.rdb == nil {
		return 0, fmt.Errorf("rate counter not initialized")
	}
	windowStart := time.Now().Unix() / int64(c.window.Seconds())
	key := fmt.Sprintf("%s:%s:%d", c.prefix, subject, windowStart)

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
