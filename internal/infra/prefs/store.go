package prefs

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// StaticStore serves a fixed set of values.
type StaticStore map[string]any

// Load returns a copy of the values.
func (s StaticStore) Load(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// FileStore reads preferences from a flat YAML mapping.
// A missing file yields no values.
type FileStore struct {
	Path string
}

// Load reads the file.
func (s FileStore) Load(context.Context) (map[string]any, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(errors.CombineErrors(ErrPreferencesUnavailable, err), "failed to read preferences file %s", s.Path)
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrapf(errors.CombineErrors(ErrPreferencesUnavailable, err), "failed to parse preferences file %s", s.Path)
	}
	return values, nil
}

// Save writes values to the file.
func (s FileStore) Save(values map[string]any) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "failed to encode preferences")
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write preferences file %s", s.Path)
	}
	return nil
}

// DefaultRedisKey is the hash that holds preferences.
const DefaultRedisKey = "meditimer:prefs"

// hashClient is the subset of the Redis client used by RedisStore.
type hashClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisStore reads preferences from a Redis hash.
type RedisStore struct {
	client hashClient
	key    string
}

// NewRedisStore creates a new Redis-backed preference store.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return newRedisStore(client, key)
}

func newRedisStore(client hashClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load reads every field of the hash. A missing hash yields no values.
func (s *RedisStore) Load(ctx context.Context) (map[string]any, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrapf(errors.CombineErrors(ErrPreferencesUnavailable, err), "failed to read preferences hash %s", s.key)
	}

	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return values, nil
}

// Save writes values into the hash.
func (s *RedisStore) Save(ctx context.Context, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.key, values).Err(); err != nil {
		return errors.Wrapf(err, "failed to write preferences hash %s", s.key)
	}
	return nil
}
