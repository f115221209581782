// Package locker provides the mutual-exclusion locks taken around booking
// writes: a Redis lock shared by every server process and an in-process
// fallback for single-instance deployments.
package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when releasing a lock that expired or was taken
// over by another holder.
var ErrNotHeld = errors.New("lock not held")

const retryInterval = 25 * time.Millisecond

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX PX lock with a random token per acquisition.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a lock over client. Keys are namespaced with prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Acquire polls until the lock is held or ctx ends. The lock expires after
// ttl if never released.
func (l *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	key = l.prefix + key
	token := uuid.New().String()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
				if err != nil {
					return fmt.Errorf("unlock %s: %w", key, err)
				}
				if n == 0 {
					return fmt.Errorf("unlock %s: %w", key, ErrNotHeld)
				}
				return nil
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// ---------------------------------------------------------------------------
// In-process
// ---------------------------------------------------------------------------

// Local is an in-process keyed mutex. ttl is ignored: a holder keeps the
// lock until it releases it.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal creates an empty keyed mutex.
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire blocks until key is free or ctx ends.
func (l *Local) Acquire(ctx context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}
	var once sync.Once
	return func(context.Context) error {
		released := false
		once.Do(func() {
			<-ch
			released = true
		})
		if !released {
			return fmt.Errorf("unlock %s: %w", key, ErrNotHeld)
		}
		return nil
	}, nil
}
