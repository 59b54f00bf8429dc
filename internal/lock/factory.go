package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/config"
)

// New builds the Locker named by cfg.LockBackend. pool is required for the
// postgres backend. The returned close func releases any client New created.
func New(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) (Locker, func() error, error) {
	log = log.With().Str("component", "lock").Str("backend", cfg.LockBackend).Logger()
	noop := func() error { return nil }

	switch cfg.LockBackend {
	case config.LockMemory:
		return NewMemoryLocker(), noop, nil
	case config.LockPostgres:
		if pool == nil {
			return nil, nil, errors.New("postgres lock backend requires a database connection")
		}
		return NewPostgresLocker(pool, log), noop, nil
	case config.LockRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		return NewRedisLocker(client, cfg.LockTTL, log), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}
