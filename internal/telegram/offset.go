package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const pollingOffsetKey = "teman:telegram:offset"

// RedisOffsetStore keeps the polling offset in redis so a restart does not replay updates.
type RedisOffsetStore struct {
	client *redis.Client
}

func NewRedisOffsetStore(client *redis.Client) *RedisOffsetStore {
	return &RedisOffsetStore{client: client}
}

// GetOffset returns the last saved offset, or 0 if none was saved.
func (s *RedisOffsetStore) GetOffset(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, pollingOffsetKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get polling offset: %w", err)
	}
	offset, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse polling offset: %w", err)
	}
	return offset, nil
}

func (s *RedisOffsetStore) SaveOffset(ctx context.Context, offset int64) error {
	if err := s.client.Set(ctx, pollingOffsetKey, strconv.FormatInt(offset, 10), 0).Err(); err != nil {
		return fmt.Errorf("failed to save polling offset: %w", err)
	}
	return nil
}
