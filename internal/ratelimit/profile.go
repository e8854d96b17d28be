package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
)

// Status is the outcome of a limiter check
type Status string

const (
	StatusOK               Status = "OK"
	StatusExceededSecond   Status = "LIMIT_EXCEEDED_SECOND"
	StatusExceededMinute   Status = "LIMIT_EXCEEDED_MINUTE"
	StatusExceeded30Minute Status = "LIMIT_EXCEEDED_30MIN"
)

// Allowed reports whether a call may be issued
func (s Status) Allowed() bool {
	return s == StatusOK
}

// Category selects a limiter profile
type Category string

const (
	CategoryStandard   Category = "STANDARD"
	CategoryMultiOrder Category = "MULTI_ORDER"
)

// ErrLimitExceeded is matched by every ExceededError
var ErrLimitExceeded = errors.New("rate limit exceeded")

// ExceededError is returned when WaitAndRetry gives up
type ExceededError struct {
	Category Category
	Status   Status
	Attempts int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded (%s) after %d attempts", e.Category, e.Status, e.Attempts)
}

func (e *ExceededError) Unwrap() error {
	return ErrLimitExceeded
}

// Profile holds the ceilings and backoff policy of one category
type Profile struct {
	Category Category
	Limits   config.WindowLimits

	BaseBackoff  time.Duration
	SecondCap    time.Duration
	MinuteCap    time.Duration
	ThirtyMinCap time.Duration

	// MaxOrdersPerRequest bounds one batch call; 0 means unbounded
	MaxOrdersPerRequest int
}

// Default ceilings
var (
	DefaultStandardLimits   = config.WindowLimits{PerSecond: 50, PerMinute: 500, Per30Min: 2000}
	DefaultMultiOrderLimits = config.WindowLimits{PerSecond: 4, PerMinute: 40, Per30Min: 160}
)

// StandardProfile is used by single-order and query endpoints
func StandardProfile(limits config.WindowLimits) Profile {
	return Profile{
		Category:     CategoryStandard,
		Limits:       limits,
		BaseBackoff:  100 * time.Millisecond,
		SecondCap:    1 * time.Second,
		MinuteCap:    5 * time.Second,
		ThirtyMinCap: 30 * time.Second,
	}
}

// MultiOrderProfile is used by batch endpoints (/multi/, /positions/exit)
func MultiOrderProfile(limits config.WindowLimits) Profile {
	return Profile{
		Category:            CategoryMultiOrder,
		Limits:              limits,
		BaseBackoff:         250 * time.Millisecond,
		SecondCap:           2 * time.Second,
		MinuteCap:           10 * time.Second,
		ThirtyMinCap:        60 * time.Second,
		MaxOrdersPerRequest: 10,
	}
}

// Backoff returns base·2^attempt capped by the tier that rejected the call
func (p Profile) Backoff(attempt int, status Status) time.Duration {
	var limit time.Duration
	switch status {
	case StatusExceededSecond:
		limit = p.SecondCap
	case StatusExceededMinute:
		limit = p.MinuteCap
	case StatusExceeded30Minute:
		limit = p.ThirtyMinCap
	default:
		return 0
	}

	d := p.BaseBackoff
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	return d
}

// CheckBatch validates the number of orders in one batch call
func (p Profile) CheckBatch(orderCount int) error {
	if orderCount <= 0 {
		return fmt.Errorf("order count must be > 0, got %d", orderCount)
	}
	if p.MaxOrdersPerRequest > 0 && orderCount > p.MaxOrdersPerRequest {
		return fmt.Errorf("order count %d exceeds maximum %d orders per request", orderCount, p.MaxOrdersPerRequest)
	}
	return nil
}
