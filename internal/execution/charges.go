package execution

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
)

// ChargeRates are brokerage and statutory rates as fractions of turnover
type ChargeRates struct {
	BrokeragePct    decimal.Decimal
	BrokerageCap    decimal.Decimal // per order
	STTDelivery     decimal.Decimal // both sides
	STTIntradaySell decimal.Decimal
	STTOptionsSell  decimal.Decimal
	STTFuturesSell  decimal.Decimal
	NSEEquityTxn    decimal.Decimal
	NSEDerivTxn     decimal.Decimal
	BSETxn          decimal.Decimal
	GST             decimal.Decimal // on brokerage + exchange fees
	SEBI            decimal.Decimal
	StampEquity     decimal.Decimal // buy side
	StampDerivative decimal.Decimal // buy side
	IPF             decimal.Decimal
}

// DefaultChargeRates returns the retail schedule (stamp duty at Maharashtra rates)
func DefaultChargeRates() ChargeRates {
	return ChargeRates{
		BrokeragePct:    decimal.RequireFromString("0.0003"),
		BrokerageCap:    decimal.RequireFromString("20.00"),
		STTDelivery:     decimal.RequireFromString("0.001"),
		STTIntradaySell: decimal.RequireFromString("0.00025"),
		STTOptionsSell:  decimal.RequireFromString("0.0005"),
		STTFuturesSell:  decimal.RequireFromString("0.0001"),
		NSEEquityTxn:    decimal.RequireFromString("0.0000325"),
		NSEDerivTxn:     decimal.RequireFromString("0.00002"),
		BSETxn:          decimal.RequireFromString("0.000030"),
		GST:             decimal.RequireFromString("0.18"),
		SEBI:            decimal.RequireFromString("0.0000001"),
		StampEquity:     decimal.RequireFromString("0.00015"),
		StampDerivative: decimal.RequireFromString("0.00003"),
		IPF:             decimal.RequireFromString("0.000001"),
	}
}

// ChargeCalculator computes the charge breakdown of an acknowledged order
// ⭐ SSOT: 수수료/세금 계산은 여기서만
type ChargeCalculator struct {
	rates ChargeRates
}

// NewChargeCalculator creates a calculator
func NewChargeCalculator(rates ChargeRates) *ChargeCalculator {
	return &ChargeCalculator{rates: rates}
}

// Calculate prices the order at its limit price, or at reference when the price is zero
func (c *ChargeCalculator) Calculate(order contracts.Order, reference decimal.Decimal, at time.Time) *contracts.OrderCharges {
	price := order.Price
	if price.IsZero() {
		price = reference
	}
	turnover := price.Mul(decimal.NewFromInt(int64(order.Quantity)))

	segment := order.Segment()
	derivative := strings.Contains(segment, "FO")
	buy := order.Side == contracts.OrderSideBuy

	brokerage := decimal.Min(turnover.Mul(c.rates.BrokeragePct), c.rates.BrokerageCap)

	// STT
	stt := decimal.Zero
	switch {
	case derivative && isOption(segment, order.InstrumentKey, order.Symbol):
		if !buy {
			stt = turnover.Mul(c.rates.STTOptionsSell)
		}
	case derivative:
		if !buy {
			stt = turnover.Mul(c.rates.STTFuturesSell)
		}
	case order.Product == contracts.ProductIntraday:
		if !buy {
			stt = turnover.Mul(c.rates.STTIntradaySell)
		}
	default:
		stt = turnover.Mul(c.rates.STTDelivery)
	}

	// Exchange transaction charge
	txnRate := c.rates.NSEEquityTxn
	switch {
	case strings.HasPrefix(segment, "NSE") && derivative:
		txnRate = c.rates.NSEDerivTxn
	case strings.HasPrefix(segment, "BSE"):
		txnRate = c.rates.BSETxn
	}
	exchange := turnover.Mul(txnRate)

	gst := brokerage.Add(exchange).Mul(c.rates.GST)
	sebi := turnover.Mul(c.rates.SEBI)

	stamp := decimal.Zero
	if buy {
		if derivative {
			stamp = turnover.Mul(c.rates.StampDerivative)
		} else {
			stamp = turnover.Mul(c.rates.StampEquity)
		}
	}
	ipf := turnover.Mul(c.rates.IPF)

	charges := &contracts.OrderCharges{
		OrderID:           order.OrderID,
		Brokerage:         brokerage.Round(2),
		ExchangeTxnCharge: exchange.Round(2),
		SEBIFee:           sebi.Round(2),
		STT:               stt.Round(2),
		StampDuty:         stamp.Round(2),
		GST:               gst.Round(2),
		IPF:               ipf.Round(2),
		Currency:          "INR",
		CalculatedAt:      at,
	}
	charges.Total = brokerage.Add(stt).Add(exchange).Add(gst).Add(sebi).Add(stamp).Add(ipf).Round(2)
	return charges
}

func isOption(segment, instrumentKey, symbol string) bool {
	if strings.Contains(segment, "OPT") {
		return true
	}
	for _, s := range []string{instrumentKey, symbol} {
		if strings.HasSuffix(s, "CE") || strings.HasSuffix(s, "PE") {
			return true
		}
	}
	return false
}
