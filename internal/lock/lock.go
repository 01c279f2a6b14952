// Package lock provides short-lived mutual exclusion keyed by string, backed
// by Redis when available and by process memory otherwise.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrLockTimeout = errors.New("lock_wait_timeout")
	ErrEmptyKey    = errors.New("lock_key_empty")
	ErrInvalidTTL  = errors.New("lock_ttl_invalid")
)

// Locker hands out tokens for held keys. Release only succeeds for the token
// that acquired the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Options struct {
	TTL          time.Duration
	WaitTimeout  time.Duration
	RetryBackoff time.Duration
}

func DefaultOptions() Options {
	return Options{
		TTL:          30 * time.Second,
		WaitTimeout:  5 * time.Second,
		RetryBackoff: 50 * time.Millisecond,
	}
}

func TenantKey(tenantID int64) string {
	return fmt.Sprintf("petlog:lock:tenant:%d", tenantID)
}

func JobKey(job string) string {
	return "petlog:lock:job:" + job
}

// Acquire polls TryLock until the key is obtained, the wait timeout elapses
// or ctx is done. The returned release func is safe to call once.
func Acquire(ctx context.Context, l Locker, key string, opts Options) (func(context.Context) error, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions().TTL
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultOptions().RetryBackoff
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultOptions().WaitTimeout
	}

	deadline := time.NewTimer(opts.WaitTimeout)
	defer deadline.Stop()

	for {
		token, ok, err := l.TryLock(ctx, key, opts.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func(releaseCtx context.Context) error {
				return l.Release(releaseCtx, key, token)
			}, nil
		}

		wait := time.NewTimer(opts.RetryBackoff)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			wait.Stop()
			return nil, ErrLockTimeout
		case <-wait.C:
		}
	}
}
