package generator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// RetryPolicy controls retries of transient provider failures.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// do runs op until it succeeds, fails permanently or the retries run out.
func (p RetryPolicy) do(ctx context.Context, log zerolog.Logger, what string, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		var perm *backoff.PermanentError
		if err == nil || errors.As(err, &perm) || transient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, p.newBackOff(ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("op", what).Int("attempt", attempt).Dur("wait", wait).Msg("retrying provider call")
	})
}

// transient classifies provider errors: 429 and 5xx replies, transport
// failures and timeouts are retried; everything else is permanent.
func transient(err error) bool {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, ErrGeneratorUnavailable) || errors.Is(err, ErrEmptyResult) {
		return false
	}
	return errors.Is(err, ErrProviderError)
}
