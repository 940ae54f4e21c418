package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "frameception:notifications:"

type redisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects to Redis and returns a Store backed by it.
func NewRedisStore(addr, password string, db int, logger *slog.Logger) (Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &redisStore{client: client, logger: logger}, nil
}

func redisKey(fid int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, fid)
}

func (s *redisStore) Get(ctx context.Context, fid int64) (Preferences, error) {
	raw, err := s.client.Get(ctx, redisKey(fid)).Result()
	if err != nil {
		if err == redis.Nil {
			return Preferences{}, ErrNotFound
		}
		return Preferences{}, fmt.Errorf("load notification preferences: %w", err)
	}
	var prefs Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return Preferences{}, fmt.Errorf("decode notification preferences: %w", err)
	}
	return prefs, nil
}

func (s *redisStore) Set(ctx context.Context, fid int64, prefs Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode notification preferences: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(fid), raw, 0).Err(); err != nil {
		return fmt.Errorf("store notification preferences: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, fid int64) error {
	if err := s.client.Del(ctx, redisKey(fid)).Err(); err != nil {
		return fmt.Errorf("delete notification preferences: %w", err)
	}
	return nil
}

func (s *redisStore) Close() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("redis close failed", "error", err)
	}
}
