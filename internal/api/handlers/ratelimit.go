package handlers

import (
	"net/http"

	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
)

// RateLimitHandler reports venue limiter occupancy
type RateLimitHandler struct {
	limiters map[string]*ratelimit.Manager
}

// NewRateLimitHandler creates the handler; limiters is keyed by broker name
func NewRateLimitHandler(limiters map[string]*ratelimit.Manager) *RateLimitHandler {
	return &RateLimitHandler{limiters: limiters}
}

type windowUsage struct {
	ratelimit.Usage
	HighestUtilization float64 `json:"highest_utilization"`
	NearingLimit       bool    `json:"nearing_limit"`
}

// GetUsage returns per-broker, per-category window usage
// GET /api/v1/ratelimit/usage
func (h *RateLimitHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]map[ratelimit.Category]windowUsage, len(h.limiters))
	for name, m := range h.limiters {
		usage := m.Usage(r.Context())
		byCategory := make(map[ratelimit.Category]windowUsage, len(usage))
		for c, u := range usage {
			byCategory[c] = windowUsage{
				Usage:              u,
				HighestUtilization: u.HighestUtilization(),
				NearingLimit:       u.IsNearingLimit(),
			}
		}
		out[name] = byCategory
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   out,
	})
}
