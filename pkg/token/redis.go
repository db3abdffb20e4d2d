package token

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Redis keys for the persisted session. Both keys change together.
const (
	tokensKey   = "storefront:session:tokens"
	identityKey = "storefront:session:identity"
)

// RedisStore persists the session in redis so it survives process
// restarts.
type RedisStore struct {
	subscribers
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		redis:  client,
		logger: log.With().Str("component", "token-store").Logger(),
	}
}

// Read restores the session from redis. A missing tokens key reads as no
// session.
func (s *RedisStore) Read(ctx context.Context) (*Triple, Identity, error) {
	data, err := s.redis.Get(ctx, tokensKey).Bytes()
	if err == redis.Nil {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read tokens: %w", err)
	}

	var triple Triple
	if err := json.Unmarshal(data, &triple); err != nil {
		return nil, nil, fmt.Errorf("unmarshal tokens: %w", err)
	}

	var identity Identity
	profile, err := s.redis.Get(ctx, identityKey).Bytes()
	switch {
	case err == redis.Nil:
		// Tolerated: an identity-less session still authenticates.
	case err != nil:
		return nil, nil, fmt.Errorf("read identity: %w", err)
	default:
		if err := json.Unmarshal(profile, &identity); err != nil {
			return nil, nil, fmt.Errorf("unmarshal identity: %w", err)
		}
	}

	return &triple, identity, nil
}

// Write persists the triple and identity in a single MULTI/EXEC so a crash
// never leaves half a session behind, then notifies subscribers.
func (s *RedisStore) Write(ctx context.Context, triple *Triple, identity Identity) error {
	if !triple.Complete() {
		return ErrPartialTriple
	}

	tokens, err := json.Marshal(triple)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	profile, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokensKey, tokens, 0)
		pipe.Set(ctx, identityKey, profile, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	s.logger.Debug().
		Str("subject", identity.Subject()).
		Msg("Session persisted")

	s.notify(triple, identity)
	return nil
}

// Clear deletes both session keys atomically and notifies subscribers
// with a nil triple.
func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, tokensKey)
		pipe.Del(ctx, identityKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}

	s.logger.Debug().Msg("Session cleared")

	s.notify(nil, nil)
	return nil
}
