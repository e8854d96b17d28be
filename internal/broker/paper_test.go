package broker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

var t0 = time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC)

func newPaper(capability Capability) (*PaperAdapter, *clock.Fake) {
	clk := clock.NewFake(t0)
	return NewPaperAdapter(capability, nil, clk, logger.Nop()), clk
}

func limitReq(corr string, side contracts.OrderSide, qty int) OrderRequest {
	return OrderRequest{
		CorrelationID: corr,
		InstrumentKey: "NSE_EQ|INE467B01029",
		Side:          side,
		OrderType:     contracts.OrderTypeLimit,
		Product:       contracts.ProductDelivery,
		Quantity:      qty,
		Price:         decimal.NewFromInt(2450),
		Tag:           "swing",
	}
}

func TestPaper_MarketOrderFills(t *testing.T) {
	p, _ := newPaper(UpstoxCapability())
	p.SetPrice("NSE_EQ|INE467B01029", decimal.NewFromInt(2500))
	ctx := context.Background()

	req := limitReq("c1", contracts.OrderSideBuy, 10)
	req.OrderType = contracts.OrderTypeMarket
	res := p.PlaceOrder(ctx, req)
	require.True(t, res.Success)
	assert.Equal(t, contracts.StatusAcknowledged, res.Status)
	assert.Equal(t, "c1", res.CorrelationID)

	status, err := p.GetOrderStatus(ctx, res.BrokerOrderID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusFilled, status.Status)
	assert.Equal(t, 10, status.FilledQuantity)
	assert.True(t, status.AveragePrice.Equal(decimal.NewFromInt(2500)))

	trades, err := p.GetTradesForDay(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, res.BrokerOrderID, trades[0].BrokerOrderID)
}

func TestPaper_LimitOrderRestsUntilFilled(t *testing.T) {
	p, _ := newPaper(UpstoxCapability())
	ctx := context.Background()

	res := p.PlaceOrder(ctx, limitReq("c1", contracts.OrderSideBuy, 10))
	require.True(t, res.Success)

	status, err := p.GetOrderStatus(ctx, res.BrokerOrderID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusOpen, status.Status)

	require.NoError(t, p.Fill(res.BrokerOrderID, 4, decimal.NewFromInt(2440)))
	status, _ = p.GetOrderStatus(ctx, res.BrokerOrderID)
	assert.Equal(t, contracts.StatusPartiallyFilled, status.Status)
	assert.Equal(t, 6, status.PendingQuantity)

	require.NoError(t, p.Fill(res.BrokerOrderID, 6, decimal.NewFromInt(2450)))
	status, _ = p.GetOrderStatus(ctx, res.BrokerOrderID)
	assert.Equal(t, contracts.StatusFilled, status.Status)
	assert.Equal(t, "2446", status.AveragePrice.String())

	trades, err := p.GetOrderTrades(ctx, res.BrokerOrderID)
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	assert.Error(t, p.Fill(res.BrokerOrderID, 1, decimal.NewFromInt(1)))
}

func TestPaper_MultiOrderBuyFirst(t *testing.T) {
	p, _ := newPaper(UpstoxCapability())

	res := p.PlaceMultiOrder(context.Background(), []OrderRequest{
		limitReq("s1", contracts.OrderSideSell, 1),
		limitReq("b1", contracts.OrderSideBuy, 1),
		limitReq("s2", contracts.OrderSideSell, 1),
		limitReq("b2", contracts.OrderSideBuy, 1),
	})

	assert.Equal(t, AggregateSuccess, res.Status)
	assert.Equal(t, 4, res.Total)
	order := make([]string, len(res.Results))
	for i, r := range res.Results {
		order[i] = r.CorrelationID
	}
	assert.Equal(t, []string{"b1", "b2", "s1", "s2"}, order)

	book, err := p.GetOrderBook(context.Background())
	require.NoError(t, err)
	require.Len(t, book, 4)
	assert.Equal(t, contracts.OrderSideBuy, book[0].Side)
	assert.Equal(t, contracts.OrderSideBuy, book[1].Side)
}

func TestPaper_MultiOrderOverBatchLimit(t *testing.T) {
	p, _ := newPaper(ZerodhaCapability())

	res := p.PlaceMultiOrder(context.Background(), []OrderRequest{
		limitReq("a", contracts.OrderSideBuy, 1),
		limitReq("b", contracts.OrderSideBuy, 1),
	})
	assert.Equal(t, AggregateError, res.Status)
	assert.Equal(t, 2, res.Errors)
	assert.Equal(t, contracts.ErrCodeBrokerError, res.Results[0].ErrorCode)
}

func TestPaper_FailureHook(t *testing.T) {
	p, _ := newPaper(UpstoxCapability())
	p.SetFailureFunc(func(op, key string) (contracts.ErrorCode, string, bool) {
		return "", "insufficient margin", op == OpPlace && key == "b2"
	})

	res := p.PlaceMultiOrder(context.Background(), []OrderRequest{
		limitReq("b1", contracts.OrderSideBuy, 1),
		limitReq("b2", contracts.OrderSideBuy, 1),
	})
	assert.Equal(t, AggregatePartial, res.Status)
	assert.Equal(t, 1, res.Success)
	assert.False(t, res.Results[1].Success)
	assert.Equal(t, contracts.ErrCodeBrokerError, res.Results[1].ErrorCode)
	assert.Equal(t, "b2", res.Results[1].CorrelationID)
}

func TestPaper_ModifyAndCancel(t *testing.T) {
	p, _ := newPaper(UpstoxCapability())
	ctx := context.Background()
	placed := p.PlaceOrder(ctx, limitReq("c1", contracts.OrderSideBuy, 10))

	qty := 20
	price := decimal.NewFromInt(2460)
	res := p.ModifyOrder(ctx, ModifyRequest{BrokerOrderID: placed.BrokerOrderID, Quantity: &qty, Price: &price})
	require.True(t, res.Success)

	book, _ := p.GetOrderBook(ctx)
	assert.Equal(t, 20, book[0].Quantity)
	assert.True(t, book[0].Price.Equal(price))

	cancelled := p.CancelOrder(ctx, placed.BrokerOrderID)
	require.True(t, cancelled.Success)
	assert.Equal(t, contracts.StatusCancelled, cancelled.Status)

	again := p.CancelOrder(ctx, placed.BrokerOrderID)
	assert.False(t, again.Success)
	assert.Equal(t, contracts.ErrCodeCancelFailed, again.ErrorCode)

	modified := p.ModifyOrder(ctx, ModifyRequest{BrokerOrderID: placed.BrokerOrderID, Quantity: &qty})
	assert.Equal(t, contracts.ErrCodeModifyFailed, modified.ErrorCode)

	missing := p.CancelMultiOrder(ctx, []string{"nope", "nada"})
	assert.Equal(t, AggregateError, missing.Status)
}

func TestPaper_ModifyUnsupported(t *testing.T) {
	capability := UpstoxCapability()
	capability.SupportsModify = false
	p, _ := newPaper(capability)
	ctx := context.Background()
	placed := p.PlaceOrder(ctx, limitReq("c1", contracts.OrderSideBuy, 10))

	qty := 5
	res := p.ModifyOrder(ctx, ModifyRequest{BrokerOrderID: placed.BrokerOrderID, Quantity: &qty})
	assert.False(t, res.Success)
	assert.Equal(t, contracts.ErrCodeModifyFailed, res.ErrorCode)
}

func TestPaper_ExitAllPositions(t *testing.T) {
	p, _ := newPaper(UpstoxCapability())
	ctx := context.Background()

	long := limitReq("l", contracts.OrderSideBuy, 10)
	long.OrderType = contracts.OrderTypeMarket
	short := limitReq("s", contracts.OrderSideSell, 5)
	short.OrderType = contracts.OrderTypeMarket
	short.InstrumentKey = "NSE_FO|NIFTY24JAN"
	p.PlaceOrder(ctx, short)
	p.PlaceOrder(ctx, long)

	res := p.ExitAllPositions(ctx, "", "swing")
	require.Equal(t, AggregateSuccess, res.Status)
	require.Equal(t, 2, res.Total)
	assert.Equal(t, "EXIT-NSE_EQ|INE467B01029", res.Results[0].CorrelationID)

	book, _ := p.GetOrderBook(ctx)
	require.Len(t, book, 4)
	assert.Equal(t, contracts.OrderSideSell, book[2].Side)
	assert.Equal(t, 10, book[2].Quantity)
	assert.Equal(t, contracts.OrderSideBuy, book[3].Side)

	fo := p.ExitAllPositions(ctx, "NSE_FO", "")
	assert.Equal(t, 0, fo.Total)
}

func TestPaper_ExitAllUnsupported(t *testing.T) {
	p, _ := newPaper(FyersCapability())
	res := p.ExitAllPositions(context.Background(), "", "")
	assert.Equal(t, AggregateError, res.Status)
}

func TestPaper_TimeoutDoesNotPlace(t *testing.T) {
	p, _ := newPaper(UpstoxCapability())
	p.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := p.PlaceOrder(ctx, limitReq("c1", contracts.OrderSideBuy, 1))
	assert.False(t, res.Success)
	assert.Equal(t, contracts.ErrCodeTimeout, res.ErrorCode)

	p.SetDelay(0)
	book, err := p.GetOrderBook(context.Background())
	require.NoError(t, err)
	assert.Empty(t, book)
}

func TestPaper_RateLimited(t *testing.T) {
	clk := clock.NewFake(t0)
	one := config.WindowLimits{PerSecond: 1, PerMinute: 1, Per30Min: 1}
	manager := ratelimit.NewManager(
		ratelimit.NewSlidingWindow(ratelimit.StandardProfile(one), clk),
		ratelimit.NewSlidingWindow(ratelimit.MultiOrderProfile(one), clk),
		nil, logger.Nop(),
	).WithMaxRetries(1)
	p := NewPaperAdapter(UpstoxCapability(), manager, clk, logger.Nop())
	ctx := context.Background()

	first := p.PlaceOrder(ctx, limitReq("a", contracts.OrderSideBuy, 1))
	require.True(t, first.Success)

	second := p.PlaceOrder(ctx, limitReq("b", contracts.OrderSideBuy, 1))
	assert.False(t, second.Success)
	assert.Equal(t, contracts.ErrCodeRateLimited, second.ErrorCode)

	status := p.RateLimitStatus(ctx)
	assert.Equal(t, 0, status.Remaining)
	assert.Equal(t, 1, status.Limit)

	multi := p.PlaceMultiOrder(ctx, []OrderRequest{limitReq("m", contracts.OrderSideBuy, 1)})
	assert.Equal(t, AggregateSuccess, multi.Status)
}

func TestPaper_Unavailable(t *testing.T) {
	p, _ := newPaper(UpstoxCapability())
	p.SetAvailable(false)

	assert.False(t, p.IsAvailable(context.Background()))
	res := p.PlaceOrder(context.Background(), limitReq("a", contracts.OrderSideBuy, 1))
	assert.Equal(t, contracts.ErrCodeNetwork, res.ErrorCode)
}
