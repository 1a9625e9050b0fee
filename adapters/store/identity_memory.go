package store

import (
	"context"
	"sync"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

// MemoryIdentityStore keeps identities in process memory.
// This is primarily intended for tests and single-node development.
type MemoryIdentityStore struct {
	byAddress map[string]*core.Identity
	byID      map[string]*core.Identity
	mu        sync.RWMutex
}

// NewMemoryIdentityStore creates a new in-memory identity store
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byAddress: make(map[string]*core.Identity),
		byID:      make(map[string]*core.Identity),
	}
}

// FindOrCreate returns the existing identity for the address or stores candidate
func (s *MemoryIdentityStore) FindOrCreate(ctx context.Context, candidate *core.Identity) (*core.Identity, bool, error) {
	address := core.CanonicalAddress(candidate.WalletAddress)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAddress[address]; ok {
		cp := *existing
		return &cp, false, nil
	}

	stored := *candidate
	stored.WalletAddress = address
	s.byAddress[address] = &stored
	s.byID[stored.ID] = &stored

	cp := stored
	return &cp, true, nil
}

// FindByID looks an identity up by internal id
func (s *MemoryIdentityStore) FindByID(ctx context.Context, id string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

// FindByAddress looks an identity up by wallet address
func (s *MemoryIdentityStore) FindByAddress(ctx context.Context, address string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byAddress[core.CanonicalAddress(address)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

// Count returns the number of stored identities
func (s *MemoryIdentityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAddress)
}
