package checkpoint

import (
	"context"
	gerrors "github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the checkpoint under a single key, letting several hosts
// share resume state for the same import.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// DialRedis parses url and returns a store plus the client to close.
func DialRedis(ctx context.Context, url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, gerrors.Wrap(err, "parse REDIS_URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, gerrors.Wrap(err, "redis ping")
	}
	return NewRedisStore(client, key), nil
}

func (s *RedisStore) Load(ctx context.Context) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if gerrors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, id != "", nil
}

func (s *RedisStore) Save(ctx context.Context, id string) error {
	return s.client.Set(ctx, s.key, id, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
