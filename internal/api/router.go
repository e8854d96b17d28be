package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Kvijay199428/VEGA-sub001/internal/api/handlers"
	"github.com/Kvijay199428/VEGA-sub001/internal/coordinator"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// Deps are the services behind the HTTP API
type Deps struct {
	Coordinator  *coordinator.Service
	Orders       *persistence.Orchestrator
	Throttle     *ratelimit.ClientLimiter      // nil disables inbound throttling
	Limiters     map[string]*ratelimit.Manager // venue limiters by broker name
	Metrics      *metrics.Metrics              // nil disables /metrics
	Location     *time.Location                // trading day for date parameters
	StreamBuffer int
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(deps Deps, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	orderHandler := handlers.NewOrderHandler(deps.Coordinator, log)
	tradeHandler := handlers.NewTradeHandler(deps.Coordinator, deps.Location, log)
	limitHandler := handlers.NewRateLimitHandler(deps.Limiters)
	streamHandler := handlers.NewStreamHandler(deps.Orders, deps.StreamBuffer, log)

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")
	}
	r.HandleFunc("/ws/orders", streamHandler.StreamOrders).Methods("GET")

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()
	if deps.Throttle != nil {
		api.Use(throttleMiddleware(deps.Throttle, deps.Metrics, log))
	}

	// Order commands
	api.HandleFunc("/orders/multi", orderHandler.PlaceMultiOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", orderHandler.CancelMultiOrder).Methods("POST")
	api.HandleFunc("/orders", orderHandler.CancelByFilter).Methods("DELETE")
	api.HandleFunc("/positions/exit", orderHandler.ExitAllPositions).Methods("POST")

	// Order queries; literal paths before {id}
	api.HandleFunc("/orders", orderHandler.GetOrderBook).Methods("GET")
	api.HandleFunc("/orders/history", orderHandler.GetOrderHistory).Methods("GET")
	api.HandleFunc("/orders/{id}/trades", tradeHandler.GetTradesForOrder).Methods("GET")
	api.HandleFunc("/orders/{id}", orderHandler.ModifyOrder).Methods("PUT")
	api.HandleFunc("/orders/{id}", orderHandler.CancelOrder).Methods("DELETE")

	// Trades
	api.HandleFunc("/trades", tradeHandler.GetTradesForDay).Methods("GET")
	api.HandleFunc("/trades/history", tradeHandler.GetTradeHistory).Methods("GET")

	// Venue limiter usage
	api.HandleFunc("/ratelimit/usage", limitHandler.GetUsage).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "vega-orders",
	})
}
