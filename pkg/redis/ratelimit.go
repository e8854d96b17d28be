package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// WindowLimiter keeps one sorted set of request timestamps per key and
// checks it against three sliding windows (1s / 1m / 30m).
// It lets several API instances share one venue quota.
// ⭐ SSOT: 분산 레이트 리밋은 여기서만
type WindowLimiter struct {
	client *Client
	prefix string
}

// WindowCeilings are the per-window ceilings checked by the Lua script
type WindowCeilings struct {
	PerSecond int
	PerMinute int
	Per30Min  int
}

// Window identifies which window rejected a request
type Window int

const (
	WindowNone Window = iota
	WindowSecond
	WindowMinute
	Window30Min
)

// WindowCounts is the live occupancy of each window
type WindowCounts struct {
	PerSecond int
	PerMinute int
	Per30Min  int
}

const retention = 30 * time.Minute

// checkScript purges entries older than 30 minutes, then checks the widest window first.
var checkScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local per_sec = tonumber(ARGV[2])
	local per_min = tonumber(ARGV[3])
	local per_30m = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - 1800000))

	if redis.call('ZCARD', key) >= per_30m then
		return 3
	end
	if redis.call('ZCOUNT', key, '(' .. (now - 60000), '+inf') >= per_min then
		return 2
	end
	if redis.call('ZCOUNT', key, '(' .. (now - 1000), '+inf') >= per_sec then
		return 1
	end
	return 0
`)

// reserveScript runs the same checks and adds the request only when every window has room
var reserveScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local per_sec = tonumber(ARGV[2])
	local per_min = tonumber(ARGV[3])
	local per_30m = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - 1800000))

	if redis.call('ZCARD', key) >= per_30m then
		return 3
	end
	if redis.call('ZCOUNT', key, '(' .. (now - 60000), '+inf') >= per_min then
		return 2
	end
	if redis.call('ZCOUNT', key, '(' .. (now - 1000), '+inf') >= per_sec then
		return 1
	end

	redis.call('ZADD', key, now, ARGV[5])
	redis.call('PEXPIRE', key, 1800000)
	return 0
`)

// countScript returns the occupancy of the three windows
var countScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - 1800000))
	return {
		redis.call('ZCOUNT', key, '(' .. (now - 1000), '+inf'),
		redis.call('ZCOUNT', key, '(' .. (now - 60000), '+inf'),
		redis.call('ZCARD', key)
	}
`)

// NewWindowLimiter creates a new distributed window limiter
func NewWindowLimiter(client *Client, prefix string) *WindowLimiter {
	return &WindowLimiter{
		client: client,
		prefix: prefix,
	}
}

func (r *WindowLimiter) key(name string) string {
	return fmt.Sprintf("%s:ratelimit:%s", r.prefix, name)
}

// Check reports the first window that is full at now, or WindowNone
func (r *WindowLimiter) Check(ctx context.Context, name string, limits WindowCeilings, now time.Time) (Window, error) {
	if !r.client.Enabled() {
		// If Redis is disabled, allow all requests
		return WindowNone, nil
	}

	res, err := checkScript.Run(ctx, r.client.Redis(), []string{r.key(name)},
		now.UnixMilli(),
		limits.PerSecond,
		limits.PerMinute,
		limits.Per30Min,
	).Int()
	if err != nil {
		return WindowNone, fmt.Errorf("rate limit script failed: %w", err)
	}

	return Window(res), nil
}

// Reserve checks the windows and, when none is full, records the request atomically.
// It returns the full window, or WindowNone when the request was recorded.
func (r *WindowLimiter) Reserve(ctx context.Context, name string, limits WindowCeilings, now time.Time) (Window, error) {
	if !r.client.Enabled() {
		return WindowNone, nil
	}

	res, err := reserveScript.Run(ctx, r.client.Redis(), []string{r.key(name)},
		now.UnixMilli(),
		limits.PerSecond,
		limits.PerMinute,
		limits.Per30Min,
		member(now),
	).Int()
	if err != nil {
		return WindowNone, fmt.Errorf("rate limit reserve failed: %w", err)
	}

	return Window(res), nil
}

func member(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
}

// Record appends a request timestamp
func (r *WindowLimiter) Record(ctx context.Context, name string, now time.Time) error {
	if !r.client.Enabled() {
		return nil
	}

	key := r.key(name)
	pipe := r.client.Redis().TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: member(now),
	})
	pipe.PExpire(ctx, key, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit record failed: %w", err)
	}
	return nil
}

// Counts returns the occupancy of every window at now
func (r *WindowLimiter) Counts(ctx context.Context, name string, now time.Time) (WindowCounts, error) {
	if !r.client.Enabled() {
		return WindowCounts{}, nil
	}

	vals, err := countScript.Run(ctx, r.client.Redis(), []string{r.key(name)}, now.UnixMilli()).Int64Slice()
	if err != nil {
		return WindowCounts{}, fmt.Errorf("rate limit count failed: %w", err)
	}
	if len(vals) != 3 {
		return WindowCounts{}, fmt.Errorf("rate limit count: unexpected reply length %d", len(vals))
	}

	return WindowCounts{
		PerSecond: int(vals[0]),
		PerMinute: int(vals[1]),
		Per30Min:  int(vals[2]),
	}, nil
}

// Reset drops every recorded timestamp for name
func (r *WindowLimiter) Reset(ctx context.Context, name string) error {
	if !r.client.Enabled() {
		return nil
	}
	return r.client.Redis().Del(ctx, r.key(name)).Err()
}
