package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/ports"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lease only if the lock still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Redis implementation of the Locker interface, shared by
// every faucet process pointing at the same Redis. A held lock has its lease
// renewed every third of the lease until it is released, so only a dead
// holder loses it.
type RedisLocker struct {
	client *redis.Client
	prefix string
	lease  time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a locker whose locks expire after lease if the holder dies
func NewRedisLocker(client *redis.Client, lease time.Duration) ports.Locker {
	return &RedisLocker{
		client: client,
		prefix: "faucet:lock:",
		lease:  lease,
		retry:  50 * time.Millisecond,
	}
}

// Lock polls SET NX until it wins or ctx is done
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := l.prefix + key

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			stop := make(chan struct{})
			go l.keepAlive(redisKey, token, stop)

			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					// The caller's ctx may already be done; release on a fresh one.
					releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token)
				})
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", core.ErrClaimInProgress, key)
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}) {
	interval := max(l.lease/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := refreshScript.Run(ctx, l.client, []string{redisKey}, token, l.lease.Milliseconds()).Int()
		cancel()
		if err == nil && held == 0 {
			// Expired or taken over, nothing left to renew.
			return
		}
	}
}
