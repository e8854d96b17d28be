package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestChargeCalculator_DeliveryBuy(t *testing.T) {
	c := NewChargeCalculator(DefaultChargeRates())
	charges := c.Calculate(contracts.Order{
		OrderID:       "o1",
		InstrumentKey: "NSE_EQ|TCS",
		Side:          contracts.OrderSideBuy,
		Product:       contracts.ProductDelivery,
		Quantity:      50,
		Price:         dec("100"),
	}, decimal.Zero, t0)

	// turnover 5000
	assert.True(t, dec("1.5").Equal(charges.Brokerage), charges.Brokerage.String())
	assert.True(t, dec("5").Equal(charges.STT), charges.STT.String())
	assert.True(t, dec("0.16").Equal(charges.ExchangeTxnCharge), charges.ExchangeTxnCharge.String())
	assert.True(t, dec("0.3").Equal(charges.GST), charges.GST.String())
	assert.True(t, dec("0.75").Equal(charges.StampDuty), charges.StampDuty.String())
	assert.True(t, dec("7.72").Equal(charges.Total), charges.Total.String())
	assert.Equal(t, "INR", charges.Currency)
	assert.Equal(t, t0, charges.CalculatedAt)
}

func TestChargeCalculator_OptionSell(t *testing.T) {
	c := NewChargeCalculator(DefaultChargeRates())
	charges := c.Calculate(contracts.Order{
		InstrumentKey: "NSE_FO|NIFTY26OCT24000CE",
		Side:          contracts.OrderSideSell,
		Product:       contracts.ProductIntraday,
		Quantity:      75,
		Price:         dec("200"),
	}, decimal.Zero, t0)

	// turnover 15000
	assert.True(t, dec("4.5").Equal(charges.Brokerage), charges.Brokerage.String())
	assert.True(t, dec("7.5").Equal(charges.STT), charges.STT.String())
	assert.True(t, dec("0.3").Equal(charges.ExchangeTxnCharge), charges.ExchangeTxnCharge.String())
	assert.True(t, charges.StampDuty.IsZero())
	assert.True(t, dec("13.18").Equal(charges.Total), charges.Total.String())
}

func TestChargeCalculator_IntradayBuyHasNoSTT(t *testing.T) {
	c := NewChargeCalculator(DefaultChargeRates())
	charges := c.Calculate(contracts.Order{
		InstrumentKey: "NSE_EQ|INFY",
		Side:          contracts.OrderSideBuy,
		Product:       contracts.ProductIntraday,
		Quantity:      10,
		Price:         dec("1500"),
	}, decimal.Zero, t0)
	assert.True(t, charges.STT.IsZero())
}

func TestChargeCalculator_BrokerageCapAndReferencePrice(t *testing.T) {
	c := NewChargeCalculator(DefaultChargeRates())
	charges := c.Calculate(contracts.Order{
		InstrumentKey: "BSE_EQ|RELIANCE",
		Side:          contracts.OrderSideSell,
		OrderType:     contracts.OrderTypeMarket,
		Product:       contracts.ProductDelivery,
		Quantity:      1000,
	}, dec("1000"), t0)

	// turnover 1,000,000 priced at the reference
	assert.True(t, dec("20").Equal(charges.Brokerage), charges.Brokerage.String())
	assert.True(t, dec("1000").Equal(charges.STT), charges.STT.String())
	assert.True(t, dec("30").Equal(charges.ExchangeTxnCharge), charges.ExchangeTxnCharge.String())
}
