package broker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/external/upstox"
	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
)

// errorCode classifies a venue call failure; fallback covers plain venue refusals
func errorCode(err error, fallback contracts.ErrorCode) contracts.ErrorCode {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contracts.ErrCodeTimeout
	}
	if errors.Is(err, ratelimit.ErrLimitExceeded) {
		return contracts.ErrCodeRateLimited
	}

	var apiErr *upstox.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatus == http.StatusTooManyRequests {
			return contracts.ErrCodeRateLimited
		}
		return fallback
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return contracts.ErrCodeTimeout
		}
		return contracts.ErrCodeNetwork
	}
	if errors.Is(err, errVenueUnavailable) {
		return contracts.ErrCodeNetwork
	}
	return fallback
}

// rateLimitStatus reports the standard category's per-minute budget
func rateLimitStatus(ctx context.Context, limiter *ratelimit.Manager, capability Capability) RateLimitStatus {
	if limiter == nil {
		return RateLimitStatus{
			Remaining: capability.RateLimitPerMinute,
			Limit:     capability.RateLimitPerMinute,
		}
	}

	usage := limiter.Usage(ctx)[ratelimit.CategoryStandard]
	remaining := usage.PerMinuteLimit - usage.PerMinute
	if remaining < 0 {
		remaining = 0
	}
	status := RateLimitStatus{Remaining: remaining, Limit: usage.PerMinuteLimit}
	if usage.PerMinute > 0 {
		status.ResetIn = time.Minute
	}
	return status
}
