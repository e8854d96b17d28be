package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

func TestFreezeQuantity(t *testing.T) {
	tests := []struct {
		segment, key string
		want         int
	}{
		{"NSE_EQ", "NSE_EQ|INE467B01029", 50000},
		{"NSE_FO", "NSE_FO|NIFTY26OCTFUT", 1800},
		{"NSE_FO", "NSE_FO|BANKNIFTY26OCTFUT", 900},
		{"NSE_FO", "NSE_FO|FINNIFTY26OCT24000CE", 1800},
		{"NSE_FO", "NSE_FO|RELIANCE26OCTFUT", 1800},
		{"MCX", "MCX|CRUDEOIL", 500},
		{"CDS", "CDS|USDINR", 10000},
		{"", "weird", 50000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FreezeQuantity(tt.segment, tt.key), tt.key)
	}
}

func TestSlicer_Slice(t *testing.T) {
	s := NewSlicer(logger.Nop())
	req := broker.OrderRequest{
		CorrelationID:     "bank",
		InstrumentKey:     "NSE_FO|BANKNIFTY26OCTFUT",
		Side:              contracts.OrderSideSell,
		Quantity:          2000,
		DisclosedQuantity: 950,
	}

	require.True(t, s.NeedsSlicing(req))
	slices := s.Slice(req)

	require.Len(t, slices, 3)
	assert.Equal(t, []int{900, 900, 200}, []int{slices[0].Quantity, slices[1].Quantity, slices[2].Quantity})
	assert.Equal(t, "bank_1", slices[0].CorrelationID)
	assert.Equal(t, "bank_3", slices[2].CorrelationID)
	assert.Equal(t, 900, slices[0].DisclosedQuantity)
	assert.Equal(t, 200, slices[2].DisclosedQuantity)

	total := 0
	for _, c := range slices {
		total += c.Quantity
	}
	assert.Equal(t, req.Quantity, total)
}

func TestSlicer_BelowFreezeIsUnchanged(t *testing.T) {
	s := NewSlicer(logger.Nop())
	req := broker.OrderRequest{CorrelationID: "c1", InstrumentKey: "NSE_EQ|TCS", Quantity: 50000}

	assert.False(t, s.NeedsSlicing(req))
	assert.Equal(t, []broker.OrderRequest{req}, s.Slice(req))
}

func TestSlicer_SliceAll(t *testing.T) {
	s := NewSlicer(logger.Nop())
	result := s.SliceAll([]broker.OrderRequest{
		{CorrelationID: "eq", InstrumentKey: "NSE_EQ|TCS", Quantity: 10},
		{CorrelationID: "crude", InstrumentKey: "MCX|CRUDEOIL", Quantity: 1200},
	})

	assert.Equal(t, 2, result.OriginalCount)
	assert.Equal(t, 1, result.OrdersSliced)
	assert.Equal(t, 4, result.TotalSlices)
	require.Len(t, result.Groups, 2)
	assert.Equal(t, SliceGroup{Original: "eq", Slices: []string{"eq"}}, result.Groups[0])
	assert.Equal(t, []string{"crude_1", "crude_2", "crude_3"}, result.Groups[1].Slices)
}

func TestAggregateSliceResults(t *testing.T) {
	groups := []SliceGroup{
		{Original: "a", Slices: []string{"a_1", "a_2"}},
		{Original: "b", Slices: []string{"b_1", "b_2"}},
	}
	results := []broker.OrderResult{
		{Success: true, CorrelationID: "a_1", BrokerOrderID: "X1", Latency: 20 * time.Millisecond},
		{Success: true, CorrelationID: "a_2", BrokerOrderID: "X2", Latency: 30 * time.Millisecond},
		broker.Failed("b_1", contracts.ErrCodeBrokerError, "margin"),
		{Success: true, CorrelationID: "b_2", BrokerOrderID: "X3"},
	}

	aggs := AggregateSliceResults(groups, results)

	require.Len(t, aggs, 2)
	assert.Equal(t, broker.AggregateSuccess, aggs[0].Status)
	assert.Equal(t, []string{"X1", "X2"}, aggs[0].SuccessOrderIDs)
	assert.Equal(t, int64(50), aggs[0].TotalLatencyMs)

	assert.Equal(t, broker.AggregatePartial, aggs[1].Status)
	assert.Equal(t, 1, aggs[1].ErrorCount)
	assert.Equal(t, []string{"margin"}, aggs[1].Errors)
}
