package execution

import (
	"sort"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
)

// MultiOrderResponse is the aggregate answer to a batch operation
// ⭐ SSOT: 배치 응답 형식은 여기서만
type MultiOrderResponse struct {
	Status  string              `json:"status"` // success, partial_success, error
	Data    []OrderRef          `json:"data"`
	Errors  []LineError         `json:"errors,omitempty"`
	Summary Summary             `json:"summary"`
	Slices  []SliceAggregate    `json:"slices,omitempty"`
	Latency *BatchLatencyReport `json:"latency,omitempty"`
}

// OrderRef links a request line to the order it produced
type OrderRef struct {
	CorrelationID string `json:"correlation_id"`
	OrderID       string `json:"order_id"`
}

// LineError is a per-line failure
type LineError struct {
	CorrelationID string              `json:"correlation_id,omitempty"`
	ErrorCode     contracts.ErrorCode `json:"error_code"`
	Message       string              `json:"message"`
}

// Summary counts the lines of a batch.
// PayloadError counts lines rejected before reaching a venue.
type Summary struct {
	Total        int `json:"total"`
	PayloadError int `json:"payload_error"`
	Success      int `json:"success"`
	Error        int `json:"error"`
}

// BatchLatencyReport is the wall time of a batch
type BatchLatencyReport struct {
	TotalMs int64 `json:"total_ms"`
}

// IsError reports a batch in which nothing succeeded
func (r *MultiOrderResponse) IsError() bool {
	return r.Status == broker.AggregateError
}

// FirstError returns the first line error, if any
func (r *MultiOrderResponse) FirstError() (LineError, bool) {
	if len(r.Errors) == 0 {
		return LineError{}, false
	}
	return r.Errors[0], true
}

// ErrorResponse is a whole-request failure raised before any line is processed
func ErrorResponse(code contracts.ErrorCode, message string) *MultiOrderResponse {
	return &MultiOrderResponse{
		Status: broker.AggregateError,
		Data:   []OrderRef{},
		Errors: []LineError{{ErrorCode: code, Message: message}},
		Summary: Summary{
			Total:        0,
			PayloadError: 1,
			Success:      0,
			Error:        1,
		},
	}
}

// responseBuilder accumulates line outcomes.
// Each outcome carries a rank; build orders outcomes by rank and keeps
// insertion order among equal ranks.
type responseBuilder struct {
	data     []OrderRef
	dataRank []int
	errors   []LineError
	errRank  []int
	seq      int
	payload  int
	slices   []SliceAggregate
	latestMs int64
}

func newResponseBuilder() *responseBuilder {
	return &responseBuilder{data: make([]OrderRef, 0)}
}

// next is the rank of an outcome recorded in processing order
func (b *responseBuilder) next() int {
	b.seq++
	return b.seq
}

func (b *responseBuilder) addSuccess(correlationID, orderID string) {
	b.addSuccessAt(b.next(), correlationID, orderID)
}

func (b *responseBuilder) addError(correlationID string, code contracts.ErrorCode, message string) {
	b.addErrorAt(b.next(), correlationID, code, message)
}

// addSuccessAt records a success for the line at rank
func (b *responseBuilder) addSuccessAt(rank int, correlationID, orderID string) {
	b.data = append(b.data, OrderRef{CorrelationID: correlationID, OrderID: orderID})
	b.dataRank = append(b.dataRank, rank)
}

// addErrorAt records a failure for the line at rank
func (b *responseBuilder) addErrorAt(rank int, correlationID string, code contracts.ErrorCode, message string) {
	b.errors = append(b.errors, LineError{CorrelationID: correlationID, ErrorCode: code, Message: message})
	b.errRank = append(b.errRank, rank)
}

// addPayloadErrorAt records a line that never reached a venue
func (b *responseBuilder) addPayloadErrorAt(rank int, correlationID string, code contracts.ErrorCode, message string) {
	b.addErrorAt(rank, correlationID, code, message)
	b.payload++
}

// merge appends another response's lines
func (b *responseBuilder) merge(other *MultiOrderResponse) {
	for _, ref := range other.Data {
		b.addSuccess(ref.CorrelationID, ref.OrderID)
	}
	for _, le := range other.Errors {
		b.addError(le.CorrelationID, le.ErrorCode, le.Message)
	}
	b.payload += other.Summary.PayloadError
	b.slices = append(b.slices, other.Slices...)
}

func (b *responseBuilder) build() *MultiOrderResponse {
	data := sortByRank(b.data, b.dataRank)
	errs := sortByRank(b.errors, b.errRank)

	success, errCount := len(data), len(errs)
	resp := &MultiOrderResponse{
		Status: broker.AggregateStatus(success, errCount),
		Data:   data,
		Errors: errs,
		Summary: Summary{
			Total:        success + errCount,
			PayloadError: b.payload,
			Success:      success,
			Error:        errCount,
		},
		Slices: b.slices,
	}
	if b.latestMs > 0 {
		resp.Latency = &BatchLatencyReport{TotalMs: b.latestMs}
	}
	return resp
}

// sortByRank returns items ordered by rank, stable among equal ranks
func sortByRank[T any](items []T, ranks []int) []T {
	if items == nil {
		return nil
	}
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return ranks[idx[i]] < ranks[idx[j]] })

	out := make([]T, len(items))
	for i, k := range idx {
		out[i] = items[k]
	}
	return out
}
