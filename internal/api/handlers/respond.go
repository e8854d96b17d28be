package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/execution"
)

// Request headers read by the order API
const (
	HeaderUserID         = "X-User-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	// DefaultUserID is used when no X-User-Id header is sent
	DefaultUserID = "demo"
)

// errorBody is the JSON shape of every transport-level error
type errorBody struct {
	Status    string              `json:"status"`
	ErrorCode contracts.ErrorCode `json:"error_code"`
	Message   string              `json:"message"`
}

// UserID returns the caller from X-User-Id
func UserID(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get(HeaderUserID)); u != "" {
		return u
	}
	return DefaultUserID
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondRaw writes an already encoded body, as stored for idempotent replays
func respondRaw(w http.ResponseWriter, status int, body []byte, replayed bool) {
	w.Header().Set("Content-Type", "application/json")
	if replayed {
		w.Header().Set(HeaderReplayed, "true")
	}
	w.WriteHeader(status)
	w.Write(body)
}

func respondError(w http.ResponseWriter, status int, code contracts.ErrorCode, message string) {
	respondJSON(w, status, errorBody{
		Status:    execution.ResultError,
		ErrorCode: code,
		Message:   message,
	})
}

// RespondError writes the standard error body; used by middleware
func RespondError(w http.ResponseWriter, status int, code contracts.ErrorCode, message string) {
	respondError(w, status, code, message)
}

// batchStatus maps a multi-order outcome to its HTTP status
func batchStatus(status string) int {
	switch status {
	case broker.AggregateSuccess:
		return http.StatusOK
	case broker.AggregatePartial:
		return http.StatusMultiStatus
	default:
		return http.StatusBadRequest
	}
}

// singleStatus maps a single-order outcome to its HTTP status
func singleStatus(status string, code contracts.ErrorCode) int {
	if status == execution.ResultSuccess {
		return http.StatusOK
	}
	switch code {
	case contracts.ErrCodeOrderNotFound:
		return http.StatusNotFound
	case contracts.ErrCodeModifyNotAllowed, contracts.ErrCodeCancelNotAllowed, contracts.ErrCodeOrderAlreadyComplete:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
