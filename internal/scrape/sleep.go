package scrape

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Sleeper waits between requests. Implementations must return early with
// ctx.Err() when ctx is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a timer, optionally adding up to JitterMax of random
// extra delay so repeated runs do not hit a site in lockstep.
type TimerSleeper struct {
	JitterMax time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTimerSleeper returns a TimerSleeper seeded from the clock.
func NewTimerSleeper(jitterMax time.Duration) *TimerSleeper {
	return &TimerSleeper{
		JitterMax: jitterMax,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return sleepContext(ctx, d+s.jitter())
}

func (s *TimerSleeper) jitter() time.Duration {
	if s.JitterMax <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return time.Duration(s.rng.Int63n(int64(s.JitterMax) + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
