package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis token store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// MaxTTL caps how long a credential is kept. Credentials are never kept
	// past their own expiry.
	MaxTTL time.Duration `mapstructure:"max_ttl"`
}

// RedisTokenStore is a TokenStore shared across processes through Redis.
type RedisTokenStore struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	maxTTL      time.Duration
	now         func() time.Time
}

// NewRedisTokenStore creates and connects a RedisTokenStore. It pings the
// server before returning.
func NewRedisTokenStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisTokenStore, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis for token store: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis for token store.")

	return &RedisTokenStore{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisTokenStore").Logger(),
		maxTTL:      cfg.MaxTTL,
		now:         time.Now,
	}, nil
}

// ttlFor returns how long cred may be kept, zero meaning no expiry. ok is
// false when cred has already expired.
func (s *RedisTokenStore) ttlFor(cred Credential) (ttl time.Duration, ok bool) {
	ttl = s.maxTTL
	if !cred.ExpiresAt.IsZero() {
		remaining := cred.ExpiresAt.Sub(s.now())
		if remaining <= 0 {
			return 0, false
		}
		if ttl == 0 || remaining < ttl {
			ttl = remaining
		}
	}
	return ttl, true
}

// Set stores the credential as JSON. An already expired credential is not stored.
func (s *RedisTokenStore) Set(ctx context.Context, key string, cred Credential) error {
	ttl, ok := s.ttlFor(cred)
	if !ok {
		s.logger.Debug().Str("key", key).Msg("Skipping expired credential.")
		return nil
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential for key %s: %w", key, err)
	}
	if err := s.redisClient.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set credential in redis for key %s: %w", key, err)
	}
	return nil
}

func (s *RedisTokenStore) Fetch(ctx context.Context, key string) (Credential, error) {
	raw, err := s.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, fmt.Errorf("key %q: %w", key, ErrNotStored)
		}
		return Credential{}, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}
	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to unmarshal credential for key %s: %w", key, err)
	}
	return cred, nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisTokenStore) Close() error {
	if s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}
