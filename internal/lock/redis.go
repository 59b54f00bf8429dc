package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisKeyPrefix    = "gbp:lock:"
	redisPollInterval = 25 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX. The TTL bounds how long a
// crashed holder can block others.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisLocker creates a RedisLocker. ttl <= 0 defaults to 30s.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, log: log}
}

// Acquire polls SET NX with a random token until it wins or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	rkey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(redisPollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire lock for %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w: %w", key, ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{rkey}, token).Err(); err != nil {
				l.log.Error().Err(err).Str("key", key).Msg("failed to release redis lock")
			}
		})
	}, nil
}

var _ Locker = (*RedisLocker)(nil)
