package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tokengov/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test fixture

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	for _, limit := range []int{1, 3, 5, 10} {
		mock := clock.NewMock(epoch)
		l := New(WithClock(mock), WithDefaultLimit(limit))

		for i := 0; i < limit; i++ {
			require.True(t, l.CanExecute("p"), "call %d of %d", i+1, limit)
			mock.Advance(time.Second)
		}
		assert.False(t, l.CanExecute("p"), "call %d must be denied", limit+1)

		retry := l.RetryAfter("p")
		assert.GreaterOrEqual(t, retry, 0)
		assert.LessOrEqual(t, retry, 60)
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	mock := clock.NewMock(epoch)
	l := New(WithClock(mock), WithDefaultLimit(2))

	require.True(t, l.CanExecute("p"))
	mock.Advance(30 * time.Second)
	require.True(t, l.CanExecute("p"))
	require.False(t, l.CanExecute("p"))

	assert.Equal(t, 30, l.RetryAfter("p"))

	// Exactly sixty seconds old is still inside the window.
	mock.Advance(30 * time.Second)
	assert.False(t, l.CanExecute("p"))

	mock.Advance(time.Nanosecond)
	assert.True(t, l.CanExecute("p"))
}

func TestLimiter_OneAdmissionPerMinute(t *testing.T) {
	mock := clock.NewMock(epoch)
	l := New(WithClock(mock))
	l.SetRateLimit("p", 1)

	require.True(t, l.CanExecute("p"))
	require.False(t, l.CanExecute("p"))

	retry := l.RetryAfter("p")
	assert.GreaterOrEqual(t, retry, 59)
	assert.LessOrEqual(t, retry, 60)
}

func TestLimiter_ProjectsAreIndependent(t *testing.T) {
	l := New(WithClock(clock.NewMock(epoch)), WithDefaultLimit(1))

	require.True(t, l.CanExecute("a"))
	assert.False(t, l.CanExecute("a"))
	assert.True(t, l.CanExecute("b"))
}

func TestLimiter_RetryAfterWithoutHistory(t *testing.T) {
	l := New(WithClock(clock.NewMock(epoch)))
	assert.Equal(t, 0, l.RetryAfter("unknown"))
}

func TestLimiter_IsRateLimitedDoesNotConsume(t *testing.T) {
	l := New(WithClock(clock.NewMock(epoch)), WithDefaultLimit(1))

	for i := 0; i < 5; i++ {
		assert.False(t, l.IsRateLimited("p"))
	}
	require.True(t, l.CanExecute("p"))
	assert.True(t, l.IsRateLimited("p"))
}

func TestLimiter_Overrides(t *testing.T) {
	l := New(
		WithClock(clock.NewMock(epoch)),
		WithDefaultLimit(5),
		WithOverrides(map[string]int{"slow": 1, "ignored": 0}),
	)

	assert.Equal(t, 1, l.Limit("slow"))
	assert.Equal(t, 5, l.Limit("ignored"))
	assert.Equal(t, 5, l.Limit("other"))

	l.SetRateLimit("other", 2)
	assert.Equal(t, 2, l.Limit("other"))

	l.SetRateLimit("other", 0)
	assert.Equal(t, 5, l.Limit("other"))

	l.SetDefaultLimit(8)
	l.SetDefaultLimit(-1)
	assert.Equal(t, 8, l.Limit("other"))
}

func TestLimiter_Reset(t *testing.T) {
	l := New(WithClock(clock.NewMock(epoch)), WithDefaultLimit(1))

	require.True(t, l.CanExecute("p"))
	require.False(t, l.CanExecute("p"))

	l.Reset("p")
	assert.True(t, l.CanExecute("p"))
}

// panicClock simulates an internal fault inside the limiter.
type panicClock struct{}

func (panicClock) Now() time.Time { panic("clock unavailable") }

func TestLimiter_FailsOpen(t *testing.T) {
	l := New(WithClock(panicClock{}), WithLogger(zerolog.Nop()), WithDefaultLimit(1))

	assert.True(t, l.CanExecute("p"))
	assert.True(t, l.CanExecute("p"))

	// The mutex must have been released by the deferred unlock.
	l.SetRateLimit("p", 3)
	assert.Equal(t, 3, l.Limit("p"))
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(WithClock(clock.NewMock(epoch)), WithDefaultLimit(10))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CanExecute("p") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}
