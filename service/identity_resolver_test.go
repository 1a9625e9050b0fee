package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/adapters/store"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

const resolverAddress = "0x52908400098527886E0F7030069857D2E4169EE7"

// slowStore widens the race window between concurrent first logins
type slowStore struct {
	*store.MemoryIdentityStore
	calls atomic.Int32
	err   error
}

func (s *slowStore) FindOrCreate(ctx context.Context, candidate *core.Identity) (*core.Identity, bool, error) {
	s.calls.Add(1)
	time.Sleep(10 * time.Millisecond)
	if s.err != nil {
		return nil, false, s.err
	}
	return s.MemoryIdentityStore.FindOrCreate(ctx, candidate)
}

func TestResolve_CreatesOnce(t *testing.T) {
	backing := &slowStore{MemoryIdentityStore: store.NewMemoryIdentityStore()}
	r := NewIdentityResolver(backing, nil, nil)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity, err := r.Resolve(context.Background(), resolverAddress)
			if assert.NoError(t, err) {
				ids[i] = identity.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, backing.Count())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestResolve_CanonicalizesAddress(t *testing.T) {
	r := NewIdentityResolver(store.NewMemoryIdentityStore(), nil, nil)

	upper, err := r.Resolve(context.Background(), resolverAddress)
	require.NoError(t, err)
	lower, err := r.Resolve(context.Background(), "0x52908400098527886e0f7030069857d2e4169ee7")
	require.NoError(t, err)

	assert.Equal(t, upper.ID, lower.ID)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", upper.WalletAddress)
	assert.Equal(t, "User_0x529084", upper.Name)
}

func TestResolve_InvalidAddress(t *testing.T) {
	r := NewIdentityResolver(store.NewMemoryIdentityStore(), nil, nil)

	_, err := r.Resolve(context.Background(), "not-an-address")
	require.ErrorIs(t, err, core.ErrInvalidWalletAddress)
}

func TestResolve_StoreFailure(t *testing.T) {
	backing := &slowStore{MemoryIdentityStore: store.NewMemoryIdentityStore(), err: errors.New("disk full")}
	r := NewIdentityResolver(backing, nil, nil)

	_, err := r.Resolve(context.Background(), resolverAddress)
	require.ErrorIs(t, err, core.ErrInternal)
}

func TestResolve_ReturnsCopy(t *testing.T) {
	r := NewIdentityResolver(store.NewMemoryIdentityStore(), nil, nil)

	first, err := r.Resolve(context.Background(), resolverAddress)
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := r.Resolve(context.Background(), resolverAddress)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second.Name)
}
