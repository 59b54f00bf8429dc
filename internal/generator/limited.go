package generator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limited bounds the number of in-flight generations and the rate at which
// new ones start.
type Limited struct {
	next    Generator
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewLimited wraps next. maxInFlight <= 0 means 1; perMinute <= 0 disables
// the rate limit.
func NewLimited(next Generator, maxInFlight int, perMinute int) *Limited {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), maxInFlight)
	}
	return &Limited{
		next:    next,
		sem:     semaphore.NewWeighted(int64(maxInFlight)),
		limiter: limiter,
	}
}

// Generate waits for a slot and a rate token, then delegates.
func (l *Limited) Generate(ctx context.Context, req Request) (*Output, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for generator slot: %w", err)
	}
	defer l.sem.Release(1)

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for generator rate limit: %w", err)
	}
	return l.next.Generate(ctx, req)
}

// Release delegates to the wrapped generator.
func (l *Limited) Release(localPath string) error {
	return l.next.Release(localPath)
}

var _ Generator = (*Limited)(nil)
