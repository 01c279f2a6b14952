package ratelimit

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/petlog/internal/config"
	"go.uber.org/zap"
)

const keyCheckoutTenant = "petlog:ratelimit:checkout:%d"

var ErrCheckoutRateLimited = errors.New("checkout_rate_limited")

// CheckoutLimiter throttles payment link creation per tenant so a client
// retry loop cannot flood the gateway.
type CheckoutLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewCheckoutLimiter returns nil, meaning unlimited, when Redis or the limit
// is not configured.
func NewCheckoutLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *CheckoutLimiter {
	limitCfg := cfg.RateLimit
	if client == nil || !limitCfg.Enabled || limitCfg.CheckoutRate <= 0 || limitCfg.CheckoutBurst <= 0 {
		return nil
	}
	return &CheckoutLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.CheckoutRate,
		burst:  limitCfg.CheckoutBurst,
		log:    log.Named("ratelimit.checkout"),
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open on Redis errors.
func (l *CheckoutLimiter) Allow(ctx context.Context, tenantID int64) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutTenant, tenantID), l.rate, l.burst)
	if err != nil {
		l.log.Warn("checkout rate limit check failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return &RateLimitResult{Allowed: true}, nil
	}
	if !res.Allowed {
		return res, ErrCheckoutRateLimited
	}
	return res, nil
}
