//go:build integration

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisNonceStore(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	t.Run("issue overwrites and take is single use", func(t *testing.T) {
		s := NewRedisNonceStore(client, time.Minute)

		first, err := s.Issue(ctx, testAddress)
		require.NoError(t, err)
		second, err := s.Issue(ctx, "0x52908400098527886E0F7030069857D2E4169EE7")
		require.NoError(t, err)

		ok, err := s.Take(ctx, testAddress, first.Nonce)
		require.NoError(t, err)
		assert.False(t, ok)

		nonce, live, err := s.Peek(ctx, testAddress)
		require.NoError(t, err)
		assert.True(t, live)
		assert.Equal(t, second.Nonce, nonce)

		ok, err = s.Take(ctx, testAddress, second.Nonce)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Take(ctx, testAddress, second.Nonce)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expires with key ttl", func(t *testing.T) {
		s := NewRedisNonceStore(client, time.Second)

		challenge, err := s.Issue(ctx, testAddress)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, live, err := s.Peek(ctx, testAddress)
			return err == nil && !live
		}, 5*time.Second, 100*time.Millisecond)

		ok, err := s.Take(ctx, testAddress, challenge.Nonce)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent take succeeds once", func(t *testing.T) {
		s := NewRedisNonceStore(client, time.Minute)

		challenge, err := s.Issue(ctx, testAddress)
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			winners atomic.Int32
		)
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, err := s.Take(ctx, testAddress, challenge.Nonce); err == nil && ok {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
	})
}
