package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
)

// Window lengths
const (
	secondWindow    = time.Second
	minuteWindow    = time.Minute
	thirtyMinWindow = 30 * time.Minute
)

// Limiter gates calls of one category against three sliding windows
type Limiter interface {
	Profile() Profile
	Check(ctx context.Context) Status
	Reserve(ctx context.Context) Status
	Record(ctx context.Context)
	Usage(ctx context.Context) Usage
	Reset(ctx context.Context)
	WaitAndRetry(ctx context.Context, maxRetries int) error
}

// SlidingWindow is the in-process Limiter.
// Timestamps are kept ascending so every window count is a binary search.
// ⭐ SSOT: 슬라이딩 윈도우 계산은 여기서만
type SlidingWindow struct {
	mu      sync.Mutex
	profile Profile
	clock   clock.Clock
	times   []time.Time
}

// NewSlidingWindow creates a limiter for profile
func NewSlidingWindow(profile Profile, clk clock.Clock) *SlidingWindow {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SlidingWindow{
		profile: profile,
		clock:   clk,
		times:   make([]time.Time, 0, profile.Limits.PerMinute),
	}
}

// Profile returns the limiter's profile
func (l *SlidingWindow) Profile() Profile {
	return l.profile
}

// Check purges timestamps older than 30 minutes, then checks the 30-minute,
// 1-minute and 1-second windows in that order.
func (l *SlidingWindow) Check(_ context.Context) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purge(now)
	return l.status(now)
}

// Reserve checks like Check and, when allowed, records the call under the same lock
// so concurrent callers cannot all pass before any of them is counted
func (l *SlidingWindow) Reserve(_ context.Context) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purge(now)
	status := l.status(now)
	if status.Allowed() {
		l.insert(now)
	}
	return status
}

// Record appends the current time unconditionally
func (l *SlidingWindow) Record(_ context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insert(l.clock.Now())
}

// status reports the first full window. Caller holds mu.
func (l *SlidingWindow) status(now time.Time) Status {
	if len(l.times) >= l.profile.Limits.Per30Min {
		return StatusExceeded30Minute
	}
	if l.countSince(now.Add(-minuteWindow)) >= l.profile.Limits.PerMinute {
		return StatusExceededMinute
	}
	if l.countSince(now.Add(-secondWindow)) >= l.profile.Limits.PerSecond {
		return StatusExceededSecond
	}
	return StatusOK
}

// insert adds now keeping the slice ascending. Caller holds mu.
func (l *SlidingWindow) insert(now time.Time) {
	n := len(l.times)
	if n == 0 || !now.Before(l.times[n-1]) {
		l.times = append(l.times, now)
		return
	}

	// Clock stepped backwards: keep the slice sorted
	idx := sort.Search(n, func(i int) bool { return l.times[i].After(now) })
	l.times = append(l.times, time.Time{})
	copy(l.times[idx+1:], l.times[idx:])
	l.times[idx] = now
}

// Usage returns the occupancy of every window
func (l *SlidingWindow) Usage(_ context.Context) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.purge(now)

	return Usage{
		PerSecond:      l.countSince(now.Add(-secondWindow)),
		PerSecondLimit: l.profile.Limits.PerSecond,
		PerMinute:      l.countSince(now.Add(-minuteWindow)),
		PerMinuteLimit: l.profile.Limits.PerMinute,
		Per30Min:       len(l.times),
		Per30MinLimit:  l.profile.Limits.Per30Min,
	}
}

// Reset forgets every recorded call
func (l *SlidingWindow) Reset(_ context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.times = l.times[:0]
}

// WaitAndRetry tries to reserve a slot up to maxRetries times, backing off between attempts
func (l *SlidingWindow) WaitAndRetry(ctx context.Context, maxRetries int) error {
	return waitAndRetry(ctx, l, l.clock, maxRetries)
}

// purge drops timestamps strictly older than 30 minutes. Caller holds mu.
func (l *SlidingWindow) purge(now time.Time) {
	cutoff := now.Add(-thirtyMinWindow)
	idx := sort.Search(len(l.times), func(i int) bool { return !l.times[i].Before(cutoff) })
	if idx == 0 {
		return
	}
	// Copy down so the backing array does not grow without bound
	n := copy(l.times, l.times[idx:])
	l.times = l.times[:n]
}

// countSince counts timestamps strictly after cutoff. Caller holds mu.
func (l *SlidingWindow) countSince(cutoff time.Time) int {
	idx := sort.Search(len(l.times), func(i int) bool { return l.times[i].After(cutoff) })
	return len(l.times) - idx
}

// waitAndRetry reserves a slot, sleeping on the clock between attempts and never
// after the last one. The limiter lock is not held while waiting.
// On success the call is already counted; do not Record it again.
func waitAndRetry(ctx context.Context, l Limiter, clk clock.Clock, maxRetries int) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	profile := l.Profile()
	status := StatusOK
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		status = l.Reserve(ctx)
		if status.Allowed() {
			return nil
		}

		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clk.After(profile.Backoff(attempt, status)):
			}
		}
	}

	return &ExceededError{Category: profile.Category, Status: status, Attempts: maxRetries}
}
