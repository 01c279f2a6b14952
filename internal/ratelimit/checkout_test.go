package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckoutLimiterDisabledWithoutRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, CheckoutRate: 1, CheckoutBurst: 1}}
	l := NewCheckoutLimiter(cfg, nil, zap.NewNop())
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckoutLimiterThrottlesPerTenant(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, CheckoutRate: 0.001, CheckoutBurst: 2}}
	l := NewCheckoutLimiter(cfg, client, zap.NewNop())
	require.True(t, l.Enabled())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Allow(ctx, 7)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := l.Allow(ctx, 7)
	assert.ErrorIs(t, err, ErrCheckoutRateLimited)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter.Seconds(), float64(0))

	res, err = l.Allow(ctx, 8)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckoutLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, CheckoutRate: 1, CheckoutBurst: 1}}
	l := NewCheckoutLimiter(cfg, client, zap.NewNop())
	mr.Close()

	res, err := l.Allow(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
