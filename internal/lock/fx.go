package lock

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/petlog/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
	fx.Provide(NewOptions),
)

func NewLocker(client *redis.Client) Locker {
	if client == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(client)
}

func NewOptions(cfg config.Config) Options {
	opts := DefaultOptions()
	if cfg.Lock.TTLSeconds > 0 {
		opts.TTL = time.Duration(cfg.Lock.TTLSeconds) * time.Second
	}
	if cfg.Lock.WaitTimeoutMS > 0 {
		opts.WaitTimeout = time.Duration(cfg.Lock.WaitTimeoutMS) * time.Millisecond
	}
	if cfg.Lock.RetryBackoffMS > 0 {
		opts.RetryBackoff = time.Duration(cfg.Lock.RetryBackoffMS) * time.Millisecond
	}
	return opts
}
