// Package ratelimit paces requests to a kintone domain with fixed windows.
//
// Check is pure: it takes the window state and returns the new one.
// Limiter wraps it with a clock and a mutex for use from many goroutines.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// WindowState is the request count of the current window.
type WindowState struct {
	Count     int
	WindowEnd time.Time
	BurstUsed int
}

// CheckResult is the outcome of a check.
type CheckResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Config holds the limit. A window admits Limit requests, plus
// BurstTokens more once the limit is used up.
type Config struct {
	Limit       int
	Window      time.Duration
	BurstTokens int
}

// PerSecond admits n requests per second.
func PerSecond(n int) Config {
	return Config{Limit: n, Window: time.Second}
}

// Check counts a request made at now against state.
func Check(state WindowState, cfg Config, now time.Time) (CheckResult, WindowState) {
	windowEnd := now.Truncate(cfg.Window).Add(cfg.Window)

	if state.WindowEnd.IsZero() || !now.Before(state.WindowEnd) {
		state = WindowState{WindowEnd: windowEnd}
	}

	if state.Count < cfg.Limit {
		state.Count++
		return CheckResult{
			Allowed:   true,
			Remaining: cfg.Limit - state.Count,
			ResetAt:   state.WindowEnd,
		}, state
	}

	if state.BurstUsed < cfg.BurstTokens {
		state.Count++
		state.BurstUsed++
		return CheckResult{Allowed: true, ResetAt: state.WindowEnd}, state
	}

	return CheckResult{ResetAt: state.WindowEnd}, state
}

// Delay returns how long a denied request waits for the next window.
func Delay(result CheckResult, now time.Time) time.Duration {
	if result.Allowed {
		return 0
	}
	return max(result.ResetAt.Sub(now), 0)
}

// Limiter blocks callers until their request fits in a window.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	state WindowState
}

// NewLimiter returns a limiter for cfg. A non-positive window means one
// second.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	return &Limiter{cfg: cfg, now: time.Now}
}

// Allow counts a request if the current window has room.
func (l *Limiter) Allow() (CheckResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	result, state := Check(l.state, l.cfg, l.now())
	l.state = state
	return result, result.Allowed
}

// Wait blocks until a request is admitted or ctx is done. A nil Limiter
// admits everything.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		result, ok := l.Allow()
		if ok {
			return nil
		}
		timer := time.NewTimer(Delay(result, l.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
