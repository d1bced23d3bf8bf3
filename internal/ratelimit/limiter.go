// Package ratelimit implements the per-project sliding-window admission
// limiter used by the governance engine.
//
// Each project may be admitted at most Limit(project) times in any trailing
// window of one minute. The window is tracked as an oldest-first slice of
// admission timestamps, pruned lazily on every call.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/clock"
	"github.com/mrz1836/tokengov/internal/constants"
)

// Limiter is a sliding-window rate limiter keyed by project id.
// It is safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	clock     clock.Clock
	logger    zerolog.Logger
	window    time.Duration
	def       int
	overrides map[string]int
	history   map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithLogger sets the logger used to report recovered faults.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithDefaultLimit sets the limit used for projects without an override.
// Non-positive values are ignored.
func WithDefaultLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.def = n
		}
	}
}

// WithOverrides installs per-project limits.
func WithOverrides(limits map[string]int) Option {
	return func(l *Limiter) {
		for id, n := range limits {
			if n > 0 {
				l.overrides[id] = n
			}
		}
	}
}

// New creates a Limiter with a one minute window.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		clock:     clock.RealClock{},
		logger:    zerolog.Nop(),
		window:    constants.RateLimitWindow,
		def:       constants.DefaultRateLimit,
		overrides: make(map[string]int),
		history:   make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanExecute reports whether projectID may be admitted now and, if so,
// records the admission. An internal fault fails open so a limiter bug
// never wedges admission.
func (l *Limiter) CanExecute(projectID string) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Str("component", "ratelimit").
				Str("project_id", projectID).
				Interface("panic", r).
				Msg("rate limiter fault, allowing execution")
			allowed = true
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	times := l.evictLocked(projectID, now)
	if len(times) >= l.limitLocked(projectID) {
		return false
	}
	l.history[projectID] = append(times, now)
	return true
}

// RetryAfter returns the whole seconds until the oldest admission leaves the
// window, or 0 when there is no history.
func (l *Limiter) RetryAfter(projectID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	times := l.evictLocked(projectID, now)
	if len(times) == 0 {
		return 0
	}

	remaining := l.window - now.Sub(times[0])
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// IsRateLimited reports whether the window for projectID is currently full.
// It never records an admission.
func (l *Limiter) IsRateLimited(projectID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	times := l.evictLocked(projectID, l.clock.Now())
	return len(times) >= l.limitLocked(projectID)
}

// SetRateLimit overrides the limit for projectID. n <= 0 removes the
// override so the default applies again.
func (l *Limiter) SetRateLimit(projectID string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 {
		delete(l.overrides, projectID)
		return
	}
	l.overrides[projectID] = n
}

// SetDefaultLimit changes the limit for projects without an override.
// Non-positive values are ignored.
func (l *Limiter) SetDefaultLimit(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.def = n
	l.mu.Unlock()
}

// Limit returns the effective limit for projectID.
func (l *Limiter) Limit(projectID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitLocked(projectID)
}

// Reset forgets every recorded admission for projectID.
func (l *Limiter) Reset(projectID string) {
	l.mu.Lock()
	delete(l.history, projectID)
	l.mu.Unlock()
}

func (l *Limiter) limitLocked(projectID string) int {
	if n, ok := l.overrides[projectID]; ok {
		return n
	}
	return l.def
}

// evictLocked drops timestamps older than the window and returns what is left.
func (l *Limiter) evictLocked(projectID string, now time.Time) []time.Time {
	times := l.history[projectID]
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		times = append(times[:0:0], times[i:]...)
		if len(times) == 0 {
			delete(l.history, projectID)
		} else {
			l.history[projectID] = times
		}
	}
	return times
}
