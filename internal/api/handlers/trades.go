package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/coordinator"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// TradeHandler serves execution views
type TradeHandler struct {
	coordinator *coordinator.Service
	location    *time.Location
	logger      *logger.Logger
}

// NewTradeHandler creates a trade handler; plain dates are read in loc
func NewTradeHandler(svc *coordinator.Service, loc *time.Location, log *logger.Logger) *TradeHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TradeHandler{coordinator: svc, location: loc, logger: log}
}

// GetTradesForDay returns the caller's trades of the current trading day
// GET /api/v1/trades
func (h *TradeHandler) GetTradesForDay(w http.ResponseWriter, r *http.Request) {
	view, err := h.coordinator.GetTradesForDay(r.Context(), UserID(r))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load trades")
		respondError(w, http.StatusInternalServerError, contracts.ErrCodeInternal, "Failed to load trades")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// GetTradesForOrder returns the executions of one order
// GET /api/v1/orders/{id}/trades
func (h *TradeHandler) GetTradesForOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	view, err := h.coordinator.GetTradesForOrder(r.Context(), UserID(r), orderID)
	switch {
	case errors.Is(err, persistence.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, contracts.ErrCodeOrderNotFound, "Order not found: "+orderID)
	case err != nil:
		h.logger.WithError(err).Error("Failed to load order trades")
		respondError(w, http.StatusInternalServerError, contracts.ErrCodeInternal, "Failed to load trades")
	default:
		respondJSON(w, http.StatusOK, view)
	}
}

// GetTradeHistory returns one page of the caller's trades
// GET /api/v1/trades/history?segment=NSE_EQ&from=2026-10-01&to=2026-10-19&page=1&size=50
func (h *TradeHandler) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := h.parseTime(q.Get("from"), false)
	if err != nil {
		respondError(w, http.StatusBadRequest, contracts.ErrCodeValidation, err.Error())
		return
	}
	to, err := h.parseTime(q.Get("to"), true)
	if err != nil {
		respondError(w, http.StatusBadRequest, contracts.ErrCodeValidation, err.Error())
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		respondError(w, http.StatusBadRequest, contracts.ErrCodeValidation, "from must be before to")
		return
	}
	page, err := parseInt(q.Get("page"), 1)
	if err != nil {
		respondError(w, http.StatusBadRequest, contracts.ErrCodeValidation, "Invalid page: "+err.Error())
		return
	}
	size, err := parseInt(q.Get("size"), coordinator.DefaultPageSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, contracts.ErrCodeValidation, "Invalid size: "+err.Error())
		return
	}

	view, err := h.coordinator.GetTradeHistory(r.Context(), UserID(r), q.Get("segment"), from, to, page, size)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load trade history")
		respondError(w, http.StatusInternalServerError, contracts.ErrCodeInternal, "Failed to load trade history")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// parseTime accepts RFC 3339 or a plain date. A plain "to" date is inclusive,
// so it becomes the start of the following day.
func (h *TradeHandler) parseTime(v string, endOfRange bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, h.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", v)
	}
	if endOfRange {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}

func parseInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
