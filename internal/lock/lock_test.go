package lock

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func lockers(t *testing.T) map[string]Locker {
	redisLocker, _ := newRedisLocker(t)
	return map[string]Locker{
		"redis": redisLocker,
		"local": NewLocalLocker(),
	}
}

func TestTryLockExcludesSecondHolder(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := TenantKey(42)

			token, ok, err := l.TryLock(ctx, key, time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			_, ok, err = l.TryLock(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			// a stale token must not free someone else's lock
			require.NoError(t, l.Release(ctx, key, "not-the-token"))
			_, ok, err = l.TryLock(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, l.Release(ctx, key, token))
			_, ok, err = l.TryLock(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestTryLockValidatesInput(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := l.TryLock(context.Background(), "", time.Second)
			assert.ErrorIs(t, err, ErrEmptyKey)
			_, _, err = l.TryLock(context.Background(), "k", 0)
			assert.ErrorIs(t, err, ErrInvalidTTL)
		})
	}
}

func TestRedisLockExpires(t *testing.T) {
	l, mr := newRedisLocker(t)
	ctx := context.Background()

	_, ok, err := l.TryLock(ctx, JobKey("expire_trials"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = l.TryLock(ctx, JobKey("expire_trials"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockExpires(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, ok, err := l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, err = l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireSerializesHolders(t *testing.T) {
	l := NewLocalLocker()
	opts := Options{TTL: time.Minute, WaitTimeout: 5 * time.Second, RetryBackoff: time.Millisecond}

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := Acquire(context.Background(), l, TenantKey(1), opts)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, release(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
}

func TestAcquireTimesOut(t *testing.T) {
	l := NewLocalLocker()
	_, ok, err := l.TryLock(context.Background(), "busy", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = Acquire(context.Background(), l, "busy", Options{TTL: time.Minute, WaitTimeout: 20 * time.Millisecond, RetryBackoff: 5 * time.Millisecond})
	assert.ErrorIs(t, err, ErrLockTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Acquire(ctx, l, "busy", Options{TTL: time.Minute, WaitTimeout: time.Second, RetryBackoff: 5 * time.Millisecond})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLockerFallsBackToLocal(t *testing.T) {
	_, isLocal := NewLocker(nil).(*LocalLocker)
	assert.True(t, isLocal)
}

func TestRedisLockRecordsHolder(t *testing.T) {
	l, mr := newRedisLocker(t)
	token, ok, err := l.TryLock(context.Background(), JobKey("expire_paid"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	held, err := mr.Get(JobKey("expire_paid"))
	require.NoError(t, err)
	assert.Equal(t, token, held)
	assert.True(t, strings.HasPrefix(held, l.instance+"/"))
}

func TestRedisLockSurfacesConnectionErrors(t *testing.T) {
	l, mr := newRedisLocker(t)
	mr.Close()

	_, ok, err := l.TryLock(context.Background(), TenantKey(3), time.Second)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), TenantKey(3))
}
