package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLimiter(limit int) (*Limiter, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Unix(1_700_000_000, 0))
	return New(Options{Limit: limit, Window: time.Minute, Clock: mock}), mock
}

func TestAllow_FiveThenRejectThenRollover(t *testing.T) {
	l, mock := newMockLimiter(5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("203.0.113.7"), "attempt %d", i+1)
		mock.Add(time.Second)
	}
	assert.False(t, l.Allow("203.0.113.7"), "sixth attempt inside the window")
	assert.Positive(t, l.RetryAfter("203.0.113.7"))

	// window started at the first attempt; it resets strictly after 60s
	mock.Add(55 * time.Second)
	assert.False(t, l.Allow("203.0.113.7"))
	mock.Add(time.Second)
	assert.True(t, l.Allow("203.0.113.7"))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := newMockLimiter(1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestAllow_ConcurrentAttemptsNeverExceedLimit(t *testing.T) {
	l, _ := newMockLimiter(10)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), admitted.Load())
}

func TestSweep_RemovesExpiredBuckets(t *testing.T) {
	l, mock := newMockLimiter(5)
	l.Allow("a")
	mock.Add(30 * time.Second)
	l.Allow("b")

	mock.Add(31 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())
	assert.Zero(t, l.RetryAfter("a"))
}

func TestRun_SweepsUntilCanceled(t *testing.T) {
	l, mock := newMockLimiter(5)
	l.Allow("a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, 10*time.Second)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mock.Add(10 * time.Second)
		return l.Len() == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_Defaults(t *testing.T) {
	l := New(Options{})
	assert.Equal(t, DefaultLoginLimit, l.Limit())
	assert.Equal(t, DefaultWindow, l.window)
}
