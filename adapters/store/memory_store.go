package store

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

// DefaultNonceTTL is how long an issued challenge stays valid
const DefaultNonceTTL = 5 * time.Minute

const shardCount = 32

type nonceShard struct {
	mu      sync.Mutex
	entries map[string]core.NonceChallenge
}

// MemoryNonceStore is an in-process implementation of ports.NonceStore.
// Entries are spread over independently locked shards so that operations on
// different addresses rarely contend, while operations on one address are
// always serialized by its shard lock.
//
// State does not survive restarts and is not shared between instances; use
// RedisNonceStore when running more than one replica.
type MemoryNonceStore struct {
	shards [shardCount]*nonceShard
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// MemoryOption configures a MemoryNonceStore
type MemoryOption func(*MemoryNonceStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryNonceStore) { s.now = now }
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(s *MemoryNonceStore) { s.logger = logger }
}

// NewMemoryNonceStore creates a new in-memory nonce store
func NewMemoryNonceStore(ttl time.Duration, opts ...MemoryOption) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	s := &MemoryNonceStore{
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
	for i := range s.shards {
		s.shards[i] = &nonceShard{entries: make(map[string]core.NonceChallenge)}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "nonce_store")
	return s
}

func (s *MemoryNonceStore) shard(address string) *nonceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(address))
	return s.shards[h.Sum32()%shardCount]
}

// Issue stores a fresh challenge, overwriting any previous one
func (s *MemoryNonceStore) Issue(ctx context.Context, address string) (*core.NonceChallenge, error) {
	address = core.CanonicalAddress(address)
	now := s.now()
	challenge := core.NonceChallenge{
		Address:   address,
		Nonce:     uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	sh := s.shard(address)
	sh.mu.Lock()
	sh.entries[address] = challenge
	sh.mu.Unlock()

	return &challenge, nil
}

// Peek returns the live nonce, purging the entry if it has expired
func (s *MemoryNonceStore) Peek(ctx context.Context, address string) (string, bool, error) {
	address = core.CanonicalAddress(address)
	sh := s.shard(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	challenge, ok := sh.entries[address]
	if !ok {
		return "", false, nil
	}
	if challenge.Expired(s.now()) {
		delete(sh.entries, address)
		return "", false, nil
	}
	return challenge.Nonce, true, nil
}

// Consume removes the challenge for address
func (s *MemoryNonceStore) Consume(ctx context.Context, address string) error {
	address = core.CanonicalAddress(address)
	sh := s.shard(address)
	sh.mu.Lock()
	delete(sh.entries, address)
	sh.mu.Unlock()
	return nil
}

// Take consumes the challenge only when nonce matches the live value
func (s *MemoryNonceStore) Take(ctx context.Context, address, nonce string) (bool, error) {
	address = core.CanonicalAddress(address)
	sh := s.shard(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	challenge, ok := sh.entries[address]
	if !ok {
		return false, nil
	}
	if challenge.Expired(s.now()) {
		delete(sh.entries, address)
		return false, nil
	}
	if challenge.Nonce != nonce {
		return false, nil
	}
	delete(sh.entries, address)
	return true, nil
}

// Sweep purges every expired challenge and returns how many were removed
func (s *MemoryNonceStore) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for address, challenge := range sh.entries {
			if challenge.Expired(now) {
				delete(sh.entries, address)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Run sweeps expired challenges every interval until ctx is done
func (s *MemoryNonceStore) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("swept expired nonces", "count", n)
			}
		}
	}
}
