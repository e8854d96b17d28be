package execution

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// 14:45 IST, outside the maintenance window
var t0 = time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC)

type fixture struct {
	clk     *clock.Fake
	paper   *broker.PaperAdapter
	router  *broker.Router
	orders  *persistence.Orchestrator
	metrics *metrics.Metrics
	svc     *MultiOrderService
	modify  *OrderModifyService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(t0)
	log := logger.Nop()
	m := metrics.NewIsolated()

	orders := persistence.NewOrchestrator(persistence.NewMemoryStore(), clk, m, log)
	paper := broker.NewPaperAdapter(broker.UpstoxCapability(), nil, clk, log)
	router := broker.NewRouter(broker.NewStaticSettings(nil), broker.NewStaticStrategies(nil), broker.Upstox, log)
	router.Register(paper)

	return &fixture{
		clk:     clk,
		paper:   paper,
		router:  router,
		orders:  orders,
		metrics: m,
		svc:     NewMultiOrderService(router, orders, nil, DefaultConfig(), clk, m, log),
		modify:  NewOrderModifyService(router, orders, clk, m, log),
	}
}

func line(corr, instrument, side string, qty int) OrderLine {
	return OrderLine{
		CorrelationID:   corr,
		InstrumentToken: instrument,
		TransactionType: side,
		OrderType:       "LIMIT",
		Product:         "D",
		Validity:        "DAY",
		Quantity:        qty,
		Price:           decimal.NewFromInt(100),
		Tag:             "swing",
	}
}

// place places lines for user "demo" and requires full success
func (f *fixture) place(t *testing.T, lines ...OrderLine) *MultiOrderResponse {
	t.Helper()
	resp := f.svc.PlaceMultiOrder(context.Background(), MultiOrderRequest{Orders: lines}, "demo")
	require.Equal(t, broker.AggregateSuccess, resp.Status, "errors: %+v", resp.Errors)
	return resp
}

func (f *fixture) open(t *testing.T, orderID string) {
	t.Helper()
	_, err := f.orders.UpdateStatus(context.Background(), orderID, contracts.StatusOpen)
	require.NoError(t, err)
}

func TestPlaceMultiOrder_BuyBeforeSell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.svc.PlaceMultiOrder(ctx, MultiOrderRequest{Orders: []OrderLine{
		line("sell-infy", "NSE_EQ|INFY", "SELL", 100),
		line("buy-tcs", "NSE_EQ|TCS", "BUY", 50),
	}}, "demo")

	require.Equal(t, broker.AggregateSuccess, resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "buy-tcs", resp.Data[0].CorrelationID)
	assert.Equal(t, "sell-infy", resp.Data[1].CorrelationID)
	assert.NotEqual(t, resp.Data[0].OrderID, resp.Data[1].OrderID)
	assert.Equal(t, Summary{Total: 2, PayloadError: 0, Success: 2, Error: 0}, resp.Summary)

	book, err := f.paper.GetOrderBook(ctx)
	require.NoError(t, err)
	require.Len(t, book, 2)
	assert.Equal(t, "NSE_EQ|TCS", book[0].InstrumentKey)

	buy, err := f.orders.GetOrder(ctx, resp.Data[0].OrderID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusAcknowledged, buy.Status)
	assert.Equal(t, broker.Upstox, buy.Broker)
	assert.Equal(t, "NSE_EQ", buy.Exchange)
	assert.Equal(t, 50, buy.Quantity)
	assert.NotEmpty(t, buy.BrokerOrderID)

	charges, err := f.orders.GetCharges(ctx, buy.OrderID)
	require.NoError(t, err)
	require.NotNil(t, charges)
	assert.True(t, charges.Total.IsPositive())

	latency, err := f.orders.GetLatency(ctx, buy.OrderID)
	require.NoError(t, err)
	assert.NotNil(t, latency)

	id, ok := f.svc.GetOrderIDByCorrelation("sell-infy")
	require.True(t, ok)
	assert.Equal(t, resp.Data[1].OrderID, id)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchTotal.WithLabelValues(OpPlaceMulti, broker.AggregateSuccess)))
}

func TestPlaceMultiOrder_BatchTooLarge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lines := make([]OrderLine, 26)
	for i := range lines {
		lines[i] = line(fmt.Sprintf("c%d", i), "NSE_EQ|TCS", "BUY", 1)
	}
	resp := f.svc.PlaceMultiOrder(ctx, MultiOrderRequest{Orders: lines}, "demo")

	assert.Equal(t, broker.AggregateError, resp.Status)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeBatchSizeExceeded, resp.Errors[0].ErrorCode)
	assert.Contains(t, resp.Errors[0].Message, "25")
	assert.Equal(t, Summary{Total: 0, PayloadError: 1, Success: 0, Error: 1}, resp.Summary)

	all, err := f.orders.GetAllOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	book, _ := f.paper.GetOrderBook(ctx)
	assert.Empty(t, book)
}

func TestPlaceMultiOrder_MaintenanceWindow(t *testing.T) {
	f := newFixture(t)
	// 01:30 IST
	f.clk.Set(time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC))

	resp := f.svc.PlaceMultiOrder(context.Background(), MultiOrderRequest{Orders: []OrderLine{
		line("c1", "NSE_EQ|TCS", "BUY", 1),
	}}, "demo")

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeMaintenanceWindow, resp.Errors[0].ErrorCode)
	assert.Equal(t, "Multi-order API unavailable 00:00-05:30 IST", resp.Errors[0].Message)
}

func TestPlaceMultiOrder_EmptyBatch(t *testing.T) {
	f := newFixture(t)
	resp := f.svc.PlaceMultiOrder(context.Background(), MultiOrderRequest{}, "demo")
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeValidation, resp.Errors[0].ErrorCode)
}

func TestPlaceMultiOrder_ValidationFailuresDoNotAbortSiblings(t *testing.T) {
	f := newFixture(t)

	noPrice := line("no-price", "NSE_EQ|TCS", "BUY", 1)
	noPrice.Price = decimal.Zero

	tests := []OrderLine{
		line("ok", "NSE_EQ|TCS", "BUY", 5),
		line(strings.Repeat("x", 21), "NSE_EQ|TCS", "BUY", 1),
		noPrice,
		line("bad-token", "TCS", "BUY", 1),
		line("zero-qty", "NSE_EQ|TCS", "BUY", 0),
		line("bad-side", "NSE_EQ|TCS", "HOLD", 1),
		line("ok", "NSE_EQ|INFY", "SELL", 1), // duplicate correlation id
	}

	resp := f.svc.PlaceMultiOrder(context.Background(), MultiOrderRequest{Orders: tests}, "demo")

	assert.Equal(t, broker.AggregatePartial, resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "ok", resp.Data[0].CorrelationID)
	require.Len(t, resp.Errors, 6)
	for _, e := range resp.Errors {
		assert.Equal(t, contracts.ErrCodeValidation, e.ErrorCode, e.CorrelationID)
	}
	assert.Equal(t, Summary{Total: 7, PayloadError: 6, Success: 1, Error: 6}, resp.Summary)
}

func TestPlaceMultiOrder_TriggerRequiredForStopLoss(t *testing.T) {
	_, cerr := validateLine(OrderLine{
		CorrelationID:   "sl",
		InstrumentToken: "NSE_EQ|TCS",
		TransactionType: "SELL",
		OrderType:       "SL-M",
		Product:         "I",
		Quantity:        1,
	}, "demo")
	require.NotNil(t, cerr)
	assert.Contains(t, cerr.Message, "trigger_price")

	req, cerr := validateLine(OrderLine{
		CorrelationID:   "sl",
		InstrumentToken: "NSE_EQ|TCS",
		TransactionType: "sell",
		OrderType:       "SL-M",
		Product:         "I",
		Quantity:        1,
		TriggerPrice:    decimal.NewFromInt(95),
	}, "demo")
	require.Nil(t, cerr)
	assert.Equal(t, contracts.OrderTypeSLM, req.OrderType)
	assert.Equal(t, contracts.ValidityDay, req.Validity)
}

func TestPlaceMultiOrder_VenueRefusal(t *testing.T) {
	f := newFixture(t)
	f.paper.SetFailureFunc(func(op, key string) (contracts.ErrorCode, string, bool) {
		return "", "insufficient funds", op == broker.OpPlace && key == "c2"
	})

	resp := f.svc.PlaceMultiOrder(context.Background(), MultiOrderRequest{Orders: []OrderLine{
		line("c1", "NSE_EQ|TCS", "BUY", 1),
		line("c2", "NSE_EQ|INFY", "BUY", 1),
	}}, "demo")

	assert.Equal(t, broker.AggregatePartial, resp.Status)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "c2", resp.Errors[0].CorrelationID)
	assert.Equal(t, contracts.ErrCodeBrokerError, resp.Errors[0].ErrorCode)
	assert.Equal(t, 0, resp.Summary.PayloadError)

	_, ok := f.svc.GetOrderIDByCorrelation("c2")
	assert.False(t, ok)
}

func TestPlaceMultiOrder_RiskGateEnforce(t *testing.T) {
	f := newFixture(t)
	checker := CheckerFunc(func(_ context.Context, _ string, o contracts.Order) (*contracts.RiskDecision, error) {
		if o.Quantity > 100 {
			return &contracts.RiskDecision{Allowed: false, Reason: "quantity above 100"}, nil
		}
		return &contracts.RiskDecision{Allowed: true}, nil
	})
	f.svc.gate = NewRiskGate(checker, GateModeEnforce, f.clk, logger.Nop())

	resp := f.svc.PlaceMultiOrder(context.Background(), MultiOrderRequest{Orders: []OrderLine{
		line("small", "NSE_EQ|TCS", "BUY", 10),
		line("large", "NSE_EQ|TCS", "BUY", 500),
	}}, "demo")

	assert.Equal(t, broker.AggregatePartial, resp.Status)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeRiskRejected, resp.Errors[0].ErrorCode)
	assert.Equal(t, "quantity above 100", resp.Errors[0].Message)
}

func TestPlaceMultiOrder_UnknownExplicitBroker(t *testing.T) {
	f := newFixture(t)
	resp := f.svc.PlaceMultiOrder(context.Background(), MultiOrderRequest{
		Broker: "ANGEL",
		Orders: []OrderLine{line("c1", "NSE_EQ|TCS", "BUY", 1)},
	}, "demo")

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeRoutingError, resp.Errors[0].ErrorCode)
}

func TestPlaceMultiOrder_AutoSlicing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l := line("nifty", "NSE_FO|NIFTY26OCTFUT", "BUY", 4000)
	l.Slice = true
	resp := f.place(t, l)

	require.Len(t, resp.Data, 3)
	assert.Equal(t, "nifty_1", resp.Data[0].CorrelationID)
	assert.Equal(t, "nifty_3", resp.Data[2].CorrelationID)

	require.Len(t, resp.Slices, 1)
	assert.Equal(t, "nifty", resp.Slices[0].OriginalCorrelationID)
	assert.Equal(t, broker.AggregateSuccess, resp.Slices[0].Status)
	assert.Equal(t, 3, resp.Slices[0].SliceCount)

	last, err := f.orders.GetOrder(ctx, resp.Data[2].OrderID)
	require.NoError(t, err)
	assert.Equal(t, 400, last.Quantity)
	assert.Equal(t, "nifty", last.ParentOrderID)
}

func TestPlaceMultiOrder_RetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	var attempts atomic.Int32
	f.paper.SetFailureFunc(func(op, key string) (contracts.ErrorCode, string, bool) {
		if op != broker.OpPlace || key != "c1" {
			return "", "", false
		}
		return contracts.ErrCodeNetwork, "connection reset", attempts.Add(1) <= 2
	})
	f.svc.WithRetrier(NewRetrier(DefaultRetryPolicy(), f.clk, logger.Nop()))

	done := make(chan *MultiOrderResponse, 1)
	go func() {
		done <- f.svc.PlaceMultiOrder(context.Background(), MultiOrderRequest{Orders: []OrderLine{
			line("c1", "NSE_EQ|TCS", "BUY", 1),
		}}, "demo")
	}()

	require.Eventually(t, func() bool { return f.clk.Waiters() == 1 }, time.Second, time.Millisecond)
	f.clk.Advance(time.Second)

	resp := <-done
	assert.Equal(t, broker.AggregateSuccess, resp.Status)
	assert.Equal(t, int32(3), attempts.Load())
}

// ============================================================
// Cancel
// ============================================================

func TestCancelMultiOrder_TooMany(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 51)
	for i := range ids {
		ids[i] = fmt.Sprintf("o%d", i)
	}

	resp := f.svc.CancelMultiOrder(context.Background(), ids, "demo")

	assert.Equal(t, broker.AggregateError, resp.Status)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeBatchSizeExceeded, resp.Errors[0].ErrorCode)
	assert.Contains(t, resp.Errors[0].Message, "50")
	assert.Empty(t, resp.Data)
}

func TestCancelMultiOrder_PerOrderOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	placed := f.place(t,
		line("c1", "NSE_EQ|TCS", "BUY", 1),
		line("c2", "NSE_EQ|INFY", "BUY", 1),
	)
	working, done := placed.Data[0].OrderID, placed.Data[1].OrderID
	_, err := f.orders.UpdateStatus(ctx, done, contracts.StatusFilled)
	require.NoError(t, err)

	resp := f.svc.CancelMultiOrder(ctx, []string{working, done, "missing"}, "demo")

	assert.Equal(t, broker.AggregatePartial, resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, OrderRef{CorrelationID: working, OrderID: working}, resp.Data[0])

	codes := map[string]contracts.ErrorCode{}
	for _, e := range resp.Errors {
		codes[e.CorrelationID] = e.ErrorCode
	}
	assert.Equal(t, contracts.ErrCodeOrderAlreadyComplete, codes[done])
	assert.Equal(t, contracts.ErrCodeOrderNotFound, codes["missing"])

	got, err := f.orders.GetOrder(ctx, working)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusCancelled, got.Status)
}

func TestCancelMultiOrder_OtherUsersOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	placed := f.place(t, line("c1", "NSE_EQ|TCS", "BUY", 1))

	resp := f.svc.CancelMultiOrder(context.Background(), []string{placed.Data[0].OrderID}, "mallory")
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeOrderNotFound, resp.Errors[0].ErrorCode)
}

func TestCancelMultiOrder_VenueRefusalLeavesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placed := f.place(t, line("c1", "NSE_EQ|TCS", "BUY", 1))
	f.paper.SetFailureFunc(func(op, _ string) (contracts.ErrorCode, string, bool) {
		return "", "exchange closed", op == broker.OpCancel
	})

	id := placed.Data[0].OrderID
	resp := f.svc.CancelMultiOrder(ctx, []string{id}, "demo")

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeCancelFailed, resp.Errors[0].ErrorCode)
	got, _ := f.orders.GetOrder(ctx, id)
	assert.Equal(t, contracts.StatusAcknowledged, got.Status)
}

func TestCancelByFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hedge := line("fo", "NSE_FO|BANKNIFTY26OCTFUT", "SELL", 15)
	hedge.Tag = "hedge"
	placed := f.place(t, line("eq", "NSE_EQ|TCS", "BUY", 1), hedge)

	resp := f.svc.CancelByFilter(ctx, "FO", "", "demo")
	require.Equal(t, broker.AggregateSuccess, resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, placed.Data[1].OrderID, resp.Data[0].OrderID)

	eq, _ := f.orders.GetOrder(ctx, placed.Data[0].OrderID)
	assert.Equal(t, contracts.StatusAcknowledged, eq.Status)

	resp = f.svc.CancelByFilter(ctx, "", "nothing-tagged", "demo")
	assert.Equal(t, broker.AggregateSuccess, resp.Status)
	assert.Equal(t, 0, resp.Summary.Total)
}

func TestPlaceMultiOrder_BuyOutcomesFirstWithFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	badBuy := line("B1", "NSE_EQ|TCS", "BUY", 10)
	badBuy.Broker = "NOPE"
	resp := f.svc.PlaceMultiOrder(ctx, MultiOrderRequest{Orders: []OrderLine{
		line("S1", "NSE_EQ|INFY", "SELL", 0),
		badBuy,
	}}, "demo")

	assert.Equal(t, broker.AggregateError, resp.Status)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "B1", resp.Errors[0].CorrelationID)
	assert.Equal(t, contracts.ErrCodeRoutingError, resp.Errors[0].ErrorCode)
	assert.Equal(t, "S1", resp.Errors[1].CorrelationID)
	assert.Equal(t, contracts.ErrCodeValidation, resp.Errors[1].ErrorCode)
}

func TestPlaceMultiOrder_MixedOutcomesKeepSubmissionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp := f.svc.PlaceMultiOrder(ctx, MultiOrderRequest{Orders: []OrderLine{
		line("s-ok", "NSE_EQ|INFY", "SELL", 5),
		line("s-bad", "INFY", "sell", 5),
		line("b-bad", "NSE_EQ|TCS", "buy", -1),
		line("b-ok", "NSE_EQ|TCS", "BUY", 5),
		line("b-ok-2", "NSE_EQ|SBIN", "BUY", 5),
	}}, "demo")

	assert.Equal(t, broker.AggregatePartial, resp.Status)
	assert.Equal(t, Summary{Total: 5, PayloadError: 2, Success: 3, Error: 2}, resp.Summary)

	var data, errs []string
	for _, ref := range resp.Data {
		data = append(data, ref.CorrelationID)
	}
	for _, le := range resp.Errors {
		errs = append(errs, le.CorrelationID)
	}
	assert.Equal(t, []string{"b-ok", "b-ok-2", "s-ok"}, data)
	assert.Equal(t, []string{"b-bad", "s-bad"}, errs)

	// The venue also saw every BUY before the SELL
	book, err := f.paper.GetOrderBook(ctx)
	require.NoError(t, err)
	require.Len(t, book, 3)
	assert.Equal(t, contracts.OrderSideSell, book[2].Side)
}

// ============================================================
// Exit all
// ============================================================

func TestExitAllPositions_NoPositions(t *testing.T) {
	f := newFixture(t)
	f.place(t, line("c1", "NSE_EQ|TCS", "BUY", 1)) // acknowledged, not working

	resp := f.svc.ExitAllPositions(context.Background(), "", "", "demo")
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeNoOpenPositions, resp.Errors[0].ErrorCode)
	assert.Equal(t, "No open positions found", resp.Errors[0].Message)
}

func TestExitAllPositions_BuyFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	placed := f.place(t,
		line("s1", "NSE_EQ|INFY", "SELL", 3),
		line("b1", "NSE_EQ|TCS", "BUY", 2),
	)
	buyID, sellID := placed.Data[0].OrderID, placed.Data[1].OrderID
	f.open(t, buyID)
	f.open(t, sellID)

	resp := f.svc.ExitAllPositions(ctx, "", "", "demo")

	require.Equal(t, broker.AggregateSuccess, resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, OrderRef{CorrelationID: buyID, OrderID: "EXIT-" + buyID}, resp.Data[0])
	assert.Equal(t, OrderRef{CorrelationID: sellID, OrderID: "EXIT-" + sellID}, resp.Data[1])

	for _, id := range []string{buyID, sellID} {
		got, err := f.orders.GetOrder(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, contracts.StatusFilled, got.Status)
	}
}

func TestExitAllPositions_PlacesOppositeOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fyers := broker.NewPaperAdapter(broker.FyersCapability(), nil, f.clk, logger.Nop())
	f.router.Register(fyers)

	resp := f.svc.PlaceMultiOrder(ctx, MultiOrderRequest{
		Broker: broker.Fyers,
		Orders: []OrderLine{line("b1", "NSE_EQ|TCS", "BUY", 2)},
	}, "demo")
	require.Equal(t, broker.AggregateSuccess, resp.Status, "%+v", resp.Errors)
	f.open(t, resp.Data[0].OrderID)

	exit := f.svc.ExitAllPositions(ctx, "NSE", "swing", "demo")
	require.Equal(t, broker.AggregateSuccess, exit.Status)

	book, err := fyers.GetOrderBook(ctx)
	require.NoError(t, err)
	require.Len(t, book, 2)
	assert.Equal(t, contracts.OrderSideSell, book[1].Side)
	assert.Equal(t, contracts.OrderTypeMarket, book[1].OrderType)
}

func TestExitAllPositions_VenueFailure(t *testing.T) {
	f := newFixture(t)
	placed := f.place(t, line("b1", "NSE_EQ|TCS", "BUY", 2))
	f.open(t, placed.Data[0].OrderID)
	f.paper.SetAvailable(false)

	resp := f.svc.ExitAllPositions(context.Background(), "", "", "demo")
	assert.Equal(t, broker.AggregateError, resp.Status)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, contracts.ErrCodeBrokerError, resp.Errors[0].ErrorCode)

	got, _ := f.orders.GetOrder(context.Background(), placed.Data[0].OrderID)
	assert.Equal(t, contracts.StatusOpen, got.Status)
}

func TestExitAllPositions_OnlyTouchesCallerPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	placeFor := func(user, corr, instrument string) string {
		resp := f.svc.PlaceMultiOrder(ctx, MultiOrderRequest{Orders: []OrderLine{line(corr, instrument, "BUY", 10)}}, user)
		require.Equal(t, broker.AggregateSuccess, resp.Status, "%+v", resp.Errors)
		id := resp.Data[0].OrderID
		_, err := f.orders.ApplyFill(ctx, id, contracts.StatusPartiallyFilled, 5, decimal.NewFromInt(100))
		require.NoError(t, err)
		return id
	}
	aliceID := placeFor("alice", "a1", "NSE_EQ|TCS")
	bobID := placeFor("bob", "b1", "NSE_EQ|INFY")

	resp := f.svc.ExitAllPositions(ctx, "", "", "alice")
	require.Equal(t, broker.AggregateSuccess, resp.Status, "%+v", resp.Errors)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "EXIT-"+aliceID, resp.Data[0].OrderID)

	book, err := f.paper.GetOrderBook(ctx)
	require.NoError(t, err)
	var sells []broker.BrokerOrder
	for _, o := range book {
		if o.Side == contracts.OrderSideSell {
			sells = append(sells, o)
		}
	}
	require.Len(t, sells, 1, "only alice's position is squared off at the venue")
	assert.Equal(t, "NSE_EQ|TCS", sells[0].InstrumentKey)

	alice, err := f.orders.GetOrder(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusFilled, alice.Status)

	bob, err := f.orders.GetOrder(ctx, bobID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusPartiallyFilled, bob.Status)
}

func TestExitAllPositions_PartialVenueFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	placed := f.place(t,
		line("b1", "NSE_EQ|TCS", "BUY", 2),
		line("b2", "NSE_EQ|INFY", "BUY", 2),
	)
	okID, refusedID := placed.Data[0].OrderID, placed.Data[1].OrderID
	f.open(t, okID)
	f.open(t, refusedID)

	f.paper.SetFailureFunc(func(op, key string) (contracts.ErrorCode, string, bool) {
		return "", "instrument suspended", op == broker.OpPlace && key == "EXIT-"+refusedID
	})

	resp := f.svc.ExitAllPositions(ctx, "", "", "demo")
	assert.Equal(t, broker.AggregatePartial, resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "EXIT-"+okID, resp.Data[0].OrderID)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, refusedID, resp.Errors[0].CorrelationID)
	assert.Equal(t, contracts.ErrCodeBrokerError, resp.Errors[0].ErrorCode)

	exited, err := f.orders.GetOrder(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusFilled, exited.Status)

	kept, err := f.orders.GetOrder(ctx, refusedID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusOpen, kept.Status)
}
