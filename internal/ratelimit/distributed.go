package ratelimit

import (
	"context"

	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
	"github.com/Kvijay199428/VEGA-sub001/pkg/redis"
)

// Distributed is a Limiter whose windows live in Redis, shared by every
// API instance. When Redis fails it falls back to an in-process window.
type Distributed struct {
	name     string
	profile  Profile
	store    *redis.WindowLimiter
	fallback *SlidingWindow
	clock    clock.Clock
	logger   *logger.Logger
}

// NewDistributed creates a Redis-backed limiter keyed by name (e.g. "upstox:STANDARD")
func NewDistributed(name string, profile Profile, store *redis.WindowLimiter, clk clock.Clock, log *logger.Logger) *Distributed {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Distributed{
		name:     name,
		profile:  profile,
		store:    store,
		fallback: NewSlidingWindow(profile, clk),
		clock:    clk,
		logger:   log.WithComponent("ratelimit").WithField("limiter", name),
	}
}

func (d *Distributed) ceilings() redis.WindowCeilings {
	return redis.WindowCeilings{
		PerSecond: d.profile.Limits.PerSecond,
		PerMinute: d.profile.Limits.PerMinute,
		Per30Min:  d.profile.Limits.Per30Min,
	}
}

// Profile returns the limiter's profile
func (d *Distributed) Profile() Profile {
	return d.profile
}

// Check asks Redis which window (if any) is full
func (d *Distributed) Check(ctx context.Context) Status {
	window, err := d.store.Check(ctx, d.name, d.ceilings(), d.clock.Now())
	if err != nil {
		d.logger.WithError(err).Warn("Redis limiter unavailable, using local window")
		return d.fallback.Check(ctx)
	}
	return statusFor(window)
}

func statusFor(window redis.Window) Status {
	switch window {
	case redis.Window30Min:
		return StatusExceeded30Minute
	case redis.WindowMinute:
		return StatusExceededMinute
	case redis.WindowSecond:
		return StatusExceededSecond
	}
	return StatusOK
}

// Reserve checks and records in one Redis script, so instances cannot overshoot together
func (d *Distributed) Reserve(ctx context.Context) Status {
	window, err := d.store.Reserve(ctx, d.name, d.ceilings(), d.clock.Now())
	if err != nil {
		d.logger.WithError(err).Warn("Redis limiter unavailable, using local window")
		return d.fallback.Reserve(ctx)
	}

	status := statusFor(window)
	if status.Allowed() {
		d.fallback.Record(ctx)
	}
	return status
}

// Record appends a timestamp to the shared window
func (d *Distributed) Record(ctx context.Context) {
	// The local window always records so a Redis outage starts from real counts
	d.fallback.Record(ctx)
	if err := d.store.Record(ctx, d.name, d.clock.Now()); err != nil {
		d.logger.WithError(err).Warn("Failed to record request in Redis")
	}
}

// Usage reads window occupancy from Redis
func (d *Distributed) Usage(ctx context.Context) Usage {
	counts, err := d.store.Counts(ctx, d.name, d.clock.Now())
	if err != nil {
		d.logger.WithError(err).Warn("Redis limiter unavailable, reporting local usage")
		return d.fallback.Usage(ctx)
	}

	return Usage{
		PerSecond:      counts.PerSecond,
		PerSecondLimit: d.profile.Limits.PerSecond,
		PerMinute:      counts.PerMinute,
		PerMinuteLimit: d.profile.Limits.PerMinute,
		Per30Min:       counts.Per30Min,
		Per30MinLimit:  d.profile.Limits.Per30Min,
	}
}

// Reset clears the shared and local windows
func (d *Distributed) Reset(ctx context.Context) {
	d.fallback.Reset(ctx)
	if err := d.store.Reset(ctx, d.name); err != nil {
		d.logger.WithError(err).Warn("Failed to reset Redis limiter")
	}
}

// WaitAndRetry tries to reserve a slot up to maxRetries times, backing off between attempts
func (d *Distributed) WaitAndRetry(ctx context.Context, maxRetries int) error {
	return waitAndRetry(ctx, d, d.clock, maxRetries)
}
