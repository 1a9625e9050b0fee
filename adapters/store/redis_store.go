package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

// takeScript deletes the key only when it still holds the presented nonce
var takeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisNonceStore is a Redis implementation of ports.NonceStore.
// Expiry is delegated to key TTLs, so an expired challenge is simply absent.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client *redis.Client, ttl time.Duration) *RedisNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &RedisNonceStore{
		client: client,
		prefix: "nft-ticketing:nonce:",
		ttl:    ttl,
	}
}

func (s *RedisNonceStore) key(address string) string {
	return s.prefix + core.CanonicalAddress(address)
}

// Issue stores a fresh challenge with the configured TTL, replacing any previous one
func (s *RedisNonceStore) Issue(ctx context.Context, address string) (*core.NonceChallenge, error) {
	now := time.Now()
	challenge := &core.NonceChallenge{
		Address:   core.CanonicalAddress(address),
		Nonce:     uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.client.Set(ctx, s.key(address), challenge.Nonce, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store nonce: %w", err)
	}

	return challenge, nil
}

// Peek returns the live nonce for address
func (s *RedisNonceStore) Peek(ctx context.Context, address string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read nonce: %w", err)
	}
	return val, true, nil
}

// Consume removes the challenge for address
func (s *RedisNonceStore) Consume(ctx context.Context, address string) error {
	if err := s.client.Del(ctx, s.key(address)).Err(); err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	return nil
}

// Take consumes the challenge only when nonce matches the stored value
func (s *RedisNonceStore) Take(ctx context.Context, address, nonce string) (bool, error) {
	deleted, err := takeScript.Run(ctx, s.client, []string{s.key(address)}, nonce).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to take nonce: %w", err)
	}
	return deleted > 0, nil
}
