package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumnicode/engine/pkg/logger"
)

// OpenRedis connects to Redis and waits until it answers PING.
func OpenRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	b := Backoff{Delay: 250 * time.Millisecond, MaxDelay: 3 * time.Second}
	for attempt := 0; ; attempt++ {
		err := rdb.Ping(ctx).Err()
		if err == nil {
			return rdb, nil
		}
		if attempt >= 5 {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping failed after retries: %w", err)
		}
		logger.L().Warn("redis not ready, retrying", zap.String("addr", addr), zap.Int("attempt", attempt+1), zap.Error(err))
		if err := b.Wait(ctx, attempt); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("open redis canceled: %w", err)
		}
	}
}
