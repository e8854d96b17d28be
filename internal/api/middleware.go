package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Kvijay199428/VEGA-sub001/internal/api/handlers"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// statusRecorder captures the response code for logs and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"user_id":  handlers.UserID(r),
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// metricsMiddleware counts requests per route template
func metricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"status":     "error",
						"error_code": string(contracts.ErrCodeInternal),
						"message":    "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// throttleMiddleware refuses callers over their per-user or per-IP rate with 429
func throttleMiddleware(limiter *ratelimit.ClientLimiter, m *metrics.Metrics, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			checks := []struct {
				scope ratelimit.Scope
				key   string
			}{
				{ratelimit.ScopeIP, clientIP(r)},
				{ratelimit.ScopeUser, handlers.UserID(r)},
			}
			for _, c := range checks {
				if limiter.Allow(c.scope, c.key) {
					continue
				}
				if m != nil {
					m.ClientThrottled.WithLabelValues(string(c.scope)).Inc()
				}
				log.WithFields(map[string]interface{}{
					"scope": c.scope,
					"key":   c.key,
					"path":  r.URL.Path,
				}).Warn("Client throttled")
				w.Header().Set("Retry-After", "1")
				handlers.RespondError(w, http.StatusTooManyRequests, contracts.ErrCodeRateLimited,
					"Too many requests ("+string(c.scope)+")")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop over the socket address
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
