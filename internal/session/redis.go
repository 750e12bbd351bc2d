package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "teman:session:"

// RedisStore keeps sessions in redis as JSON. Each save refreshes the TTL, so an idle
// conversation expires and the user meets the SessionExpired guard on return.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Session, error) {
	data, err := s.client.Get(ctx, s.buildKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(userID), nil
		}
		return Session{}, fmt.Errorf("failed to get session from redis: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess Session) error {
	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.buildKey(sess.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.buildKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) buildKey(userID string) string {
	return s.prefix + userID
}
