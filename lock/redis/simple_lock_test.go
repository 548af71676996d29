package redis

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arunvm123/flashdeal/lock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 50})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestTryLockIsMutuallyExclusive(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	const callers = 100
	var acquired int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := NewSimpleLock(client, "order:42")
			<-start
			ok, err := l.TryLock(ctx, 10*time.Second)
			if err != nil {
				t.Errorf("TryLock error: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&acquired, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), acquired)
}

func TestTryLockStoresOwnerToken(t *testing.T) {
	mr, client := newTestClient(t)
	l := NewSimpleLock(client, "order:1")

	ok, err := l.TryLock(context.Background(), 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := mr.Get("lock:order:1")
	require.NoError(t, err)
	assert.Equal(t, l.token, got)
	assert.True(t, strings.HasPrefix(got, lock.ProcessID()+"-"))
	assert.Equal(t, 10*time.Second, mr.TTL("lock:order:1"))
}

func TestUnlockReleasesForNextHolder(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	first := NewSimpleLock(client, "shop:1")
	second := NewSimpleLock(client, "shop:1")

	ok, err := first.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock(ctx))

	ok, err = second.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockByNonOwnerIsNoop(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	holder := NewSimpleLock(client, "order:7")
	stranger := NewSimpleLock(client, "order:7")

	ok, err := holder.TryLock(ctx, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, stranger.Unlock(ctx), lock.ErrLockNotHeld)

	got, err := mr.Get("lock:order:7")
	require.NoError(t, err)
	assert.Equal(t, holder.token, got)
}

func TestExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	a := NewSimpleLock(client, "order:9")
	b := NewSimpleLock(client, "order:9")

	ok, err := a.TryLock(ctx, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	ok, err = b.TryLock(ctx, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// a's delayed unlock must not remove b's record
	assert.ErrorIs(t, a.Unlock(ctx), lock.ErrLockNotHeld)
	got, err := mr.Get("lock:order:9")
	require.NoError(t, err)
	assert.Equal(t, b.token, got)

	require.NoError(t, b.Unlock(ctx))
	assert.False(t, mr.Exists("lock:order:9"))
}

func TestOwnerTokensAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		token := lock.NewOwnerToken()
		_, dup := seen[token]
		require.False(t, dup, "duplicate token %s", token)
		seen[token] = struct{}{}
	}
}
