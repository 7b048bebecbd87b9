package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ichi0g0y/spinwheel/internal/shared/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix = "spinRecords:"
	redisField     = "createdAt"
)

// サーバー時刻（ms）で記録を更新して返す
var touchScript = redis.NewScript(`
local t = redis.call('TIME')
local ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
redis.call('HSET', KEYS[1], ARGV[1], ms)
return ms
`)

// RedisStore keeps one hash per user: spinRecords:{uid} createdAt=<unix ms>.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	var addrs []string
	for _, a := range strings.Split(cfg.RedisAddr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("redis address is required")
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:           addrs,
		Password:        cfg.RedisPassword,
		DB:              cfg.RedisDB,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        10,
		PoolTimeout:     5 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("Failed pinging redis", zap.Error(err))
		_ = rdb.Close()
		return nil, fmt.Errorf("failed pinging redis: %w", err)
	}

	logger.Info("Redis record store connected", zap.Strings("addrs", addrs))
	return &RedisStore{rdb: rdb}, nil
}

func redisKey(userID string) string {
	return redisKeyPrefix + userID
}

func (s *RedisStore) GetLastSpin(ctx context.Context, userID string) (time.Time, bool, error) {
	ms, err := s.rdb.HGet(ctx, redisKey(userID), redisField).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get spin record: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *RedisStore) TouchLastSpin(ctx context.Context, userID string) (time.Time, error) {
	ms, err := touchScript.Run(ctx, s.rdb, []string{redisKey(userID)}, redisField).Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to upsert spin record: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func (s *RedisStore) ResetLastSpin(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete spin record: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	logger.Info("Closing redis record store")
	return s.rdb.Close()
}
