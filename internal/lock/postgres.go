package lock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresLocker uses session-level advisory locks. Each held lock pins one
// pooled connection until released.
type PostgresLocker struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresLocker creates a PostgresLocker on pool.
func NewPostgresLocker(pool *pgxpool.Pool, log zerolog.Logger) *PostgresLocker {
	return &PostgresLocker{pool: pool, log: log}
}

// Acquire takes the advisory lock for key on a dedicated connection. Release
// unlocks on a fresh context, so it still works after ctx is cancelled.
func (l *PostgresLocker) Acquire(ctx context.Context, key string) (func(), error) {
	id := hashToInt64(key)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection for %s: %w: %w", key, ErrNotAcquired, err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", id); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire lock for %s: %w: %w", key, ErrNotAcquired, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", id); err != nil {
				l.log.Error().Err(err).Str("key", key).Msg("failed to release advisory lock")
				// a session that failed to unlock must not go back to the pool
				_ = conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}, nil
}

// hashToInt64 maps key onto the advisory lock id space with FNV-1a.
func hashToInt64(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

var _ Locker = (*PostgresLocker)(nil)
