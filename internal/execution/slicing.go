package execution

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// Exchange freeze quantities
var freezeQuantities = map[string]int{
	"NSE_EQ":           50000,
	"BSE_EQ":           50000,
	"NSE_FO_NIFTY":     1800,
	"NSE_FO_BANKNIFTY": 900,
	"NSE_FO_FINNIFTY":  1800,
	"NSE_FO_DEFAULT":   1800,
	"MCX":              500,
	"CDS":              10000,
}

const defaultFreezeQuantity = 50000

// Slicer splits orders above the exchange freeze quantity into children
// ⭐ SSOT: 주문 분할 규칙은 여기서만
type Slicer struct {
	logger *logger.Logger
}

// NewSlicer creates a slicer
func NewSlicer(log *logger.Logger) *Slicer {
	return &Slicer{logger: log}
}

// SliceGroup maps an original correlation id to its slice correlation ids
type SliceGroup struct {
	Original string   `json:"original"`
	Slices   []string `json:"slices"`
}

// SliceResult is the outcome of slicing a batch
type SliceResult struct {
	Orders        []broker.OrderRequest
	Groups        []SliceGroup
	OriginalCount int
	OrdersSliced  int
	TotalSlices   int
}

// SliceAggregate rebuilds the outcome of one original line from its slices
type SliceAggregate struct {
	OriginalCorrelationID string   `json:"original_correlation_id"`
	Status                string   `json:"status"`
	SliceCount            int      `json:"slice_count"`
	SuccessCount          int      `json:"success_count"`
	ErrorCount            int      `json:"error_count"`
	SuccessOrderIDs       []string `json:"success_order_ids"`
	Errors                []string `json:"errors,omitempty"`
	TotalLatencyMs        int64    `json:"total_latency_ms"`
}

// FreezeQuantity returns the per-order ceiling for an instrument.
// F&O limits depend on the underlying; other segments use the segment table.
func FreezeQuantity(segment, instrumentKey string) int {
	segment = strings.ToUpper(segment)
	key := strings.ToUpper(instrumentKey)

	if strings.Contains(segment, "FO") {
		switch {
		case strings.Contains(key, "BANKNIFTY"):
			return freezeQuantities["NSE_FO_BANKNIFTY"]
		case strings.Contains(key, "FINNIFTY"):
			return freezeQuantities["NSE_FO_FINNIFTY"]
		case strings.Contains(key, "NIFTY"):
			return freezeQuantities["NSE_FO_NIFTY"]
		}
		return freezeQuantities["NSE_FO_DEFAULT"]
	}

	if q, ok := freezeQuantities[segment]; ok {
		return q
	}
	return defaultFreezeQuantity
}

// NeedsSlicing reports whether the order exceeds its freeze quantity
func (s *Slicer) NeedsSlicing(req broker.OrderRequest) bool {
	return req.Quantity > FreezeQuantity(contracts.SegmentOf(req.InstrumentKey), req.InstrumentKey)
}

// Slice splits one order; correlation ids get _1, _2, ... suffixes
func (s *Slicer) Slice(req broker.OrderRequest) []broker.OrderRequest {
	freeze := FreezeQuantity(contracts.SegmentOf(req.InstrumentKey), req.InstrumentKey)
	if req.Quantity <= freeze {
		return []broker.OrderRequest{req}
	}

	slices := make([]broker.OrderRequest, 0, req.Quantity/freeze+1)
	remaining := req.Quantity
	for i := 1; remaining > 0; i++ {
		qty := min(remaining, freeze)
		child := req
		child.CorrelationID = fmt.Sprintf("%s_%d", req.CorrelationID, i)
		child.Quantity = qty
		child.DisclosedQuantity = min(req.DisclosedQuantity, qty)
		slices = append(slices, child)
		remaining -= qty
	}

	s.logger.WithFields(map[string]interface{}{
		"correlation_id": req.CorrelationID,
		"slices":         len(slices),
		"quantity":       req.Quantity,
		"freeze":         freeze,
	}).Info("Order sliced")

	return slices
}

// SliceAll slices every order that needs it, keeping submission order
func (s *Slicer) SliceAll(reqs []broker.OrderRequest) SliceResult {
	result := SliceResult{
		Orders:        make([]broker.OrderRequest, 0, len(reqs)),
		Groups:        make([]SliceGroup, 0, len(reqs)),
		OriginalCount: len(reqs),
	}

	for _, req := range reqs {
		slices := s.Slice(req)
		if len(slices) > 1 {
			result.OrdersSliced++
		}
		ids := make([]string, 0, len(slices))
		for _, child := range slices {
			ids = append(ids, child.CorrelationID)
		}
		result.Orders = append(result.Orders, slices...)
		result.Groups = append(result.Groups, SliceGroup{Original: req.CorrelationID, Slices: ids})
	}
	result.TotalSlices = len(result.Orders)
	return result
}

// AggregateSliceResults rebuilds per-original outcomes from slice results
func AggregateSliceResults(groups []SliceGroup, results []broker.OrderResult) []SliceAggregate {
	byCorrelation := make(map[string]broker.OrderResult, len(results))
	for _, r := range results {
		byCorrelation[r.CorrelationID] = r
	}

	out := make([]SliceAggregate, 0, len(groups))
	for _, g := range groups {
		agg := SliceAggregate{
			OriginalCorrelationID: g.Original,
			SliceCount:            len(g.Slices),
			SuccessOrderIDs:       make([]string, 0, len(g.Slices)),
		}
		var latency time.Duration
		for _, id := range g.Slices {
			r, ok := byCorrelation[id]
			if !ok {
				continue
			}
			if r.Success {
				agg.SuccessCount++
				agg.SuccessOrderIDs = append(agg.SuccessOrderIDs, r.BrokerOrderID)
			} else {
				agg.ErrorCount++
				agg.Errors = append(agg.Errors, r.Message)
			}
			latency += r.Latency
		}
		agg.Status = broker.AggregateStatus(agg.SuccessCount, agg.ErrorCount)
		agg.TotalLatencyMs = latency.Milliseconds()
		out = append(out, agg)
	}
	return out
}
