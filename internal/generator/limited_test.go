package generator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowGenerator struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	released atomic.Int32
}

func (s *slowGenerator) Generate(ctx context.Context, req Request) (*Output, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return &Output{LocalPath: "x"}, nil
}

func (s *slowGenerator) Release(string) error {
	s.released.Add(1)
	return nil
}

func TestLimitedBoundsConcurrency(t *testing.T) {
	inner := &slowGenerator{}
	l := NewLimited(inner, 2, 0)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Generate(context.Background(), Request{Prompt: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.peak.Load(), int32(2))
	require.NoError(t, l.Release("x"))
	assert.EqualValues(t, 1, inner.released.Load())
}

func TestLimitedHonoursContext(t *testing.T) {
	l := NewLimited(&slowGenerator{}, 1, 1)
	ctx := context.Background()
	_, err := l.Generate(ctx, Request{})
	require.NoError(t, err)

	// the single token is spent; the next call would wait a minute
	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = l.Generate(ctx, Request{})
	assert.Error(t, err)
}
