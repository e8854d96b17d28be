package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/execution"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// 14:45 IST
var t0 = time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC)

type fixture struct {
	clk     *clock.Fake
	orders  *persistence.Orchestrator
	metrics *metrics.Metrics
	idem    *MemoryIdempotency
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(t0)
	log := logger.Nop()
	m := metrics.NewIsolated()

	orders := persistence.NewOrchestrator(persistence.NewMemoryStore(), clk, m, log)
	router := broker.NewRouter(broker.NewStaticSettings(nil), broker.NewStaticStrategies(nil), broker.Upstox, log)
	router.Register(broker.NewPaperAdapter(broker.UpstoxCapability(), nil, clk, log))

	multi := execution.NewMultiOrderService(router, orders, nil, execution.DefaultConfig(), clk, m, log)
	modify := execution.NewOrderModifyService(router, orders, clk, m, log)
	idem := NewMemoryIdempotency(clk)

	return &fixture{
		clk:     clk,
		orders:  orders,
		metrics: m,
		idem:    idem,
		svc:     NewService(multi, modify, orders, NewMemoryTradeStore(), idem, DefaultConfig(), clk, m, log),
	}
}

func batch() execution.MultiOrderRequest {
	line := func(corr, instrument, side string, qty int) execution.OrderLine {
		return execution.OrderLine{
			CorrelationID:   corr,
			InstrumentToken: instrument,
			TransactionType: side,
			OrderType:       "LIMIT",
			Product:         "D",
			Quantity:        qty,
			Price:           decimal.NewFromInt(100),
			Tag:             "swing",
		}
	}
	return execution.MultiOrderRequest{Orders: []execution.OrderLine{
		line("buy-tcs", "NSE_EQ|TCS", "BUY", 50),
		line("sell-infy", "NSE_EQ|INFY", "SELL", 100),
	}}
}

func (f *fixture) orderCount(t *testing.T) int {
	t.Helper()
	all, err := f.orders.GetAllOrders(context.Background())
	require.NoError(t, err)
	return len(all)
}

// ============================================================
// Idempotency
// ============================================================

func TestPlaceMultiOrder_ReplaysSameKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, r1, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "K1")
	require.NoError(t, err)
	require.Equal(t, broker.AggregateSuccess, first.Status)
	assert.False(t, r1.Replayed)

	second, r2, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "K1")
	require.NoError(t, err)
	assert.True(t, r2.Replayed)

	assert.Equal(t, []byte(r1.Body), []byte(r2.Body))
	assert.Equal(t, first.Data, second.Data)
	assert.Equal(t, 2, f.orderCount(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IdempotencyReplays.WithLabelValues(OpPlaceMulti)))
}

func TestPlaceMultiOrder_WithoutKeyExecutesEachTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, r1, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)
	_, r2, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)

	assert.False(t, r1.Replayed)
	assert.False(t, r2.Replayed)
	assert.Equal(t, 4, f.orderCount(t))
}

func TestIdempotencyKeysAreScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "K1")
	require.NoError(t, err)

	// Same key, other user
	_, reply, err := f.svc.PlaceMultiOrder(ctx, batch(), "other", "K1")
	require.NoError(t, err)
	assert.False(t, reply.Replayed)

	// Same key, other operation
	resp, reply, err := f.svc.CancelMultiOrder(ctx, []string{"missing"}, "demo", "K1")
	require.NoError(t, err)
	assert.False(t, reply.Replayed)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeOrderNotFound, resp.Errors[0].ErrorCode)

	assert.Equal(t, 4, f.orderCount(t))
}

func TestPlaceMultiOrder_ConcurrentSameKeyExecutesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 8
	bodies := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, reply, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "K-concurrent")
			assert.NoError(t, err)
			bodies[i] = string(reply.Body)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, f.orderCount(t))
	for _, b := range bodies[1:] {
		assert.Equal(t, bodies[0], b)
	}
}

func TestIdempotencyRecordsExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "K1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.idem.Len())

	f.clk.Advance(301 * time.Second)
	dropped, err := f.svc.SweepIdempotency(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 0, f.idem.Len())

	_, reply, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "K1")
	require.NoError(t, err)
	assert.False(t, reply.Replayed)
	assert.Equal(t, 4, f.orderCount(t))
}

func TestMemoryIdempotency(t *testing.T) {
	clk := clock.NewFake(t0)
	store := NewMemoryIdempotency(clk)
	ctx := context.Background()

	first := IdempotencyRecord{Key: "k", Response: []byte(`{"n":1}`), CreatedAt: t0}
	got, err := store.PutIfAbsent(ctx, first, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = store.PutIfAbsent(ctx, IdempotencyRecord{Key: "k", Response: []byte(`{"n":2}`)}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	clk.Advance(time.Minute)
	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, store.Len())
}

// ============================================================
// Single-order writes
// ============================================================

func TestModifyOrder_ReplayAndOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	placed, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)
	id := placed.Data[0].OrderID
	qty := 60

	res, reply, err := f.svc.ModifyOrder(ctx, execution.ModifyRequest{OrderID: id, Quantity: &qty}, "demo", "M1")
	require.NoError(t, err)
	assert.Equal(t, execution.ResultSuccess, res.Status)
	assert.Equal(t, []string{"quantity"}, res.UpdatedFields)
	assert.False(t, reply.Replayed)

	again, reply, err := f.svc.ModifyOrder(ctx, execution.ModifyRequest{OrderID: id, Quantity: &qty}, "demo", "M1")
	require.NoError(t, err)
	assert.True(t, reply.Replayed)
	assert.Equal(t, res.UpdatedFields, again.UpdatedFields)

	res, _, err = f.svc.ModifyOrder(ctx, execution.ModifyRequest{OrderID: id, Quantity: &qty}, "mallory", "")
	require.NoError(t, err)
	assert.Equal(t, contracts.ErrCodeOrderNotFound, res.ErrorCode)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	placed, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)
	id := placed.Data[0].OrderID

	res, _, err := f.svc.CancelOrder(ctx, id, "mallory", "")
	require.NoError(t, err)
	assert.Equal(t, contracts.ErrCodeOrderNotFound, res.ErrorCode)

	res, _, err = f.svc.CancelOrder(ctx, id, "demo", "C1")
	require.NoError(t, err)
	assert.Equal(t, execution.ResultSuccess, res.Status)

	// A replay does not hit the already cancelled order again
	res, reply, err := f.svc.CancelOrder(ctx, id, "demo", "C1")
	require.NoError(t, err)
	assert.True(t, reply.Replayed)
	assert.Equal(t, execution.ResultSuccess, res.Status)

	res, _, err = f.svc.CancelOrder(ctx, id, "demo", "C2")
	require.NoError(t, err)
	assert.Equal(t, contracts.ErrCodeCancelNotAllowed, res.ErrorCode)
}

func TestExitAllPositions_NoPositions(t *testing.T) {
	f := newFixture(t)
	resp, _, err := f.svc.ExitAllPositions(context.Background(), "", "", "demo", "")
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeNoOpenPositions, resp.Errors[0].ErrorCode)
}

func TestCancelByFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)

	resp, _, err := f.svc.CancelByFilter(ctx, "NSE_EQ", "swing", "demo", "")
	require.NoError(t, err)
	assert.Equal(t, broker.AggregateSuccess, resp.Status)
	assert.Equal(t, 2, resp.Summary.Success)
}

// ============================================================
// Read side
// ============================================================

func TestGetOrderBook_CachedForTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)

	book, err := f.svc.GetOrderBook(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, SourceStore, book.Source)
	assert.Len(t, book.Data, 2)

	f.clk.Advance(time.Second)
	book, err = f.svc.GetOrderBook(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, book.Source)
	assert.Equal(t, int64(1000), book.AgeMs)
	assert.Equal(t, t0, book.LastUpdate)

	f.clk.Advance(time.Second)
	book, err = f.svc.GetOrderBook(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, SourceStore, book.Source)
}

func TestGetOrderBook_WriteInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book, err := f.svc.GetOrderBook(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, book.Data)

	_, _, err = f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)

	book, err = f.svc.GetOrderBook(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, SourceStore, book.Source)
	assert.Len(t, book.Data, 2)
}

func TestGetOrderHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)
	id := placed.Data[0].OrderID

	h, err := f.svc.GetOrderHistory(ctx, "demo", id, "")
	require.NoError(t, err)
	require.Len(t, h.Orders, 1)
	require.NotEmpty(t, h.Events)
	assert.Equal(t, contracts.AuditOrderPersisted, h.Events[0].EventType)

	h, err = f.svc.GetOrderHistory(ctx, "demo", "", "swing")
	require.NoError(t, err)
	assert.Len(t, h.Orders, 2)

	_, err = f.svc.GetOrderHistory(ctx, "mallory", id, "")
	assert.True(t, errors.Is(err, persistence.ErrOrderNotFound))

	_, err = f.svc.GetOrderHistory(ctx, "demo", "", "")
	assert.ErrorIs(t, err, ErrHistoryQuery)
}

func trade(id, orderID string, at time.Time) contracts.Trade {
	return contracts.Trade{
		TradeID:       id,
		OrderID:       orderID,
		UserID:        "demo",
		Segment:       "NSE_EQ",
		InstrumentKey: "NSE_EQ|TCS",
		Side:          contracts.OrderSideBuy,
		Quantity:      1,
		Price:         decimal.NewFromInt(100),
		TradedAt:      at,
	}
}

func TestRegisterTrade_InvalidatesTradeViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	day, err := f.svc.GetTradesForDay(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, day.Data)

	require.NoError(t, f.svc.RegisterTrade(ctx, trade("T1", "O1", t0)))
	require.NoError(t, f.svc.RegisterTrade(ctx, trade("T1", "O1", t0))) // duplicate
	require.NoError(t, f.svc.RegisterTrade(ctx, trade("T0", "O1", t0.Add(-48*time.Hour))))

	day, err = f.svc.GetTradesForDay(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, SourceStore, day.Source)
	require.Len(t, day.Data, 1)
	assert.Equal(t, "T1", day.Data[0].TradeID)
	assert.Equal(t, t0, day.Data[0].CreatedAt)

	byOrder, err := f.svc.GetTradesForOrder(ctx, "demo", "O1")
	require.NoError(t, err)
	assert.Len(t, byOrder.Data, 2)

	err = f.svc.RegisterTrade(ctx, contracts.Trade{TradeID: "T9"})
	var cerr *contracts.CodedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, contracts.ErrCodeValidation, cerr.Code)
}

func TestRegisterTrade_FillsUserFromOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.RegisterTrade(ctx, contracts.Trade{
		OrderID:  placed.Data[0].OrderID,
		Quantity: 50,
		Price:    decimal.NewFromInt(100),
		TradedAt: t0,
	}))

	day, err := f.svc.GetTradesForDay(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, day.Data, 1)
	assert.NotEmpty(t, day.Data[0].TradeID)
	assert.Equal(t, "NSE_EQ", day.Data[0].Segment)
}

func TestGetTradesForOrder_ForeignUserNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed, _, err := f.svc.PlaceMultiOrder(ctx, batch(), "demo", "")
	require.NoError(t, err)
	orderID := placed.Data[0].OrderID

	require.NoError(t, f.svc.RegisterTrade(ctx, contracts.Trade{
		OrderID:  orderID,
		Quantity: 50,
		Price:    decimal.NewFromInt(100),
		TradedAt: t0,
	}))

	own, err := f.svc.GetTradesForOrder(ctx, "demo", orderID)
	require.NoError(t, err)
	assert.Len(t, own.Data, 1)

	// A cached view for the owner must not leak to anyone else
	_, err = f.svc.GetTradesForOrder(ctx, "mallory", orderID)
	assert.ErrorIs(t, err, persistence.ErrOrderNotFound)
}

func TestGetTradeHistory_Pages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.RegisterTrade(ctx, trade(fmt.Sprintf("T%d", i), "O1", t0.Add(time.Duration(i)*time.Minute))))
	}
	from, to := t0.Add(-time.Hour), t0.Add(time.Hour)

	page, err := f.svc.GetTradeHistory(ctx, "demo", "", from, to, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, PageMeta{PageNumber: 2, PageSize: 2, TotalRecords: 5, TotalPages: 3}, page.Metadata)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "T2", page.Data[0].TradeID)

	page, err = f.svc.GetTradeHistory(ctx, "demo", "", from, to, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)

	page, err = f.svc.GetTradeHistory(ctx, "demo", "NSE_FO", from, to, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, 0, page.Metadata.TotalPages)
}

func TestSweepReadCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.GetOrderBook(ctx, "demo")
	require.NoError(t, err)
	_, err = f.svc.GetTradesForDay(ctx, "demo")
	require.NoError(t, err)

	f.clk.Advance(3 * time.Second)
	assert.Equal(t, 1, f.svc.SweepReadCache())
	f.clk.Advance(3 * time.Second)
	assert.Equal(t, 1, f.svc.SweepReadCache())
}
