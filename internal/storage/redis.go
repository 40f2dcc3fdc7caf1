package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisStateKey = "observer:alert_state"

// RedisStore keeps the alert map as one JSON blob under a single key;
// SET replaces the whole document atomically.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig encapsulates connectivity for the Redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NewRedisStore connects and verifies the server is reachable.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("storage: redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Load reads the blob; a missing key means no open alerts.
func (s *RedisStore) Load(ctx context.Context) (AlertState, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	data, err := s.client.Get(ctx, redisStateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return AlertState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load alert state: %w", err)
	}

	state := AlertState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode alert state: %w", err)
	}
	return state, nil
}

// Save replaces the blob. No TTL: alert state lives until resolved.
func (s *RedisStore) Save(ctx context.Context, state AlertState) error {
	if s.client == nil {
		return ErrNotConfigured
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}

	if err := s.client.Set(ctx, redisStateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save alert state: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

var _ AlertStateStore = (*RedisStore)(nil)
