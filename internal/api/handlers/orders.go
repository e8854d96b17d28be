package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/coordinator"
	"github.com/Kvijay199428/VEGA-sub001/internal/execution"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// maxBodyBytes bounds request bodies; a full 25-line batch is well below it
const maxBodyBytes = 1 << 20

// OrderHandler handles order command and order-book endpoints
// ⭐ SSOT: 주문 API 핸들러는 이 구조체에서만
type OrderHandler struct {
	coordinator *coordinator.Service
	logger      *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(svc *coordinator.Service, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		coordinator: svc,
		logger:      log,
	}
}

// cancelMultiRequest is the body of POST /api/v1/orders/cancel
type cancelMultiRequest struct {
	OrderIDs []string `json:"order_ids"`
}

// ============================================================
// Commands
// ============================================================

// PlaceMultiOrder places a batch of orders
// POST /api/v1/orders/multi
func (h *OrderHandler) PlaceMultiOrder(w http.ResponseWriter, r *http.Request) {
	var req execution.MultiOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, reply, err := h.coordinator.PlaceMultiOrder(r.Context(), req, UserID(r), idempotencyKey(r))
	if err != nil {
		h.internalError(w, err, "Failed to place orders")
		return
	}
	respondRaw(w, batchStatus(resp.Status), reply.Body, reply.Replayed)
}

// CancelMultiOrder cancels a list of orders
// POST /api/v1/orders/cancel
func (h *OrderHandler) CancelMultiOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelMultiRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, reply, err := h.coordinator.CancelMultiOrder(r.Context(), req.OrderIDs, UserID(r), idempotencyKey(r))
	if err != nil {
		h.internalError(w, err, "Failed to cancel orders")
		return
	}
	respondRaw(w, batchStatus(resp.Status), reply.Body, reply.Replayed)
}

// CancelByFilter cancels every open order matching segment and tag
// DELETE /api/v1/orders?segment=NSE_EQ&tag=swing
func (h *OrderHandler) CancelByFilter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, reply, err := h.coordinator.CancelByFilter(r.Context(), q.Get("segment"), q.Get("tag"), UserID(r), idempotencyKey(r))
	if err != nil {
		h.internalError(w, err, "Failed to cancel orders")
		return
	}
	respondRaw(w, batchStatus(resp.Status), reply.Body, reply.Replayed)
}

// ExitAllPositions closes open positions, optionally filtered by segment and tag
// POST /api/v1/positions/exit?segment=NSE_FO&tag=hedge
func (h *OrderHandler) ExitAllPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, reply, err := h.coordinator.ExitAllPositions(r.Context(), q.Get("segment"), q.Get("tag"), UserID(r), idempotencyKey(r))
	if err != nil {
		h.internalError(w, err, "Failed to exit positions")
		return
	}
	respondRaw(w, batchStatus(resp.Status), reply.Body, reply.Replayed)
}

// ModifyOrder changes the present fields of an open order
// PUT /api/v1/orders/{id}
func (h *OrderHandler) ModifyOrder(w http.ResponseWriter, r *http.Request) {
	var req execution.ModifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.OrderID = mux.Vars(r)["id"]

	result, reply, err := h.coordinator.ModifyOrder(r.Context(), req, UserID(r), idempotencyKey(r))
	if err != nil {
		h.internalError(w, err, "Failed to modify order")
		return
	}
	respondRaw(w, singleStatus(result.Status, result.ErrorCode), reply.Body, reply.Replayed)
}

// CancelOrder cancels one order
// DELETE /api/v1/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	result, reply, err := h.coordinator.CancelOrder(r.Context(), mux.Vars(r)["id"], UserID(r), idempotencyKey(r))
	if err != nil {
		h.internalError(w, err, "Failed to cancel order")
		return
	}
	respondRaw(w, singleStatus(result.Status, result.ErrorCode), reply.Body, reply.Replayed)
}

// ============================================================
// Queries
// ============================================================

// GetOrderBook returns the caller's orders
// GET /api/v1/orders
func (h *OrderHandler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	view, err := h.coordinator.GetOrderBook(r.Context(), UserID(r))
	if err != nil {
		h.internalError(w, err, "Failed to load order book")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// GetOrderHistory returns an order's audit trail, or that of every order carrying tag
// GET /api/v1/orders/history?order_id=...&tag=...
func (h *OrderHandler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := h.coordinator.GetOrderHistory(r.Context(), UserID(r), q.Get("order_id"), q.Get("tag"))
	switch {
	case errors.Is(err, coordinator.ErrHistoryQuery):
		respondError(w, http.StatusBadRequest, contracts.ErrCodeValidation, err.Error())
	case errors.Is(err, persistence.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, contracts.ErrCodeOrderNotFound, "Order not found: "+q.Get("order_id"))
	case err != nil:
		h.internalError(w, err, "Failed to load order history")
	default:
		respondJSON(w, http.StatusOK, view)
	}
}

func (h *OrderHandler) internalError(w http.ResponseWriter, err error, message string) {
	h.logger.WithError(err).Error(message)
	respondError(w, http.StatusInternalServerError, contracts.ErrCodeInternal, message)
}

// decodeBody reads a JSON body into dest; it writes a 400 and returns false on failure
func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, contracts.ErrCodeValidation, "Invalid request body: "+err.Error())
		return false
	}
	return true
}
