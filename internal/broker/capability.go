package broker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/strategyconfig"
)

// Broker names with a capability preset
const (
	Upstox  = "UPSTOX"
	Zerodha = "ZERODHA"
	Fyers   = "FYERS"
)

// Capability describes what a venue supports. Values are immutable once built.
type Capability struct {
	BrokerName          string   `json:"broker_name"`
	SupportedSegments   []string `json:"supported_segments"`
	SupportedOrderTypes []string `json:"supported_order_types"`
	SupportedProducts   []string `json:"supported_products"`
	MaxOrdersPerBatch   int      `json:"max_orders_per_batch"`
	RateLimitPerMinute  int      `json:"rate_limit_per_minute"`
	SupportsMultiOrder  bool     `json:"supports_multi_order"`
	SupportsModify      bool     `json:"supports_modify"`
	SupportsCancelMulti bool     `json:"supports_cancel_multi"`
	SupportsExitAll     bool     `json:"supports_exit_all"`
	SupportsSlicing     bool     `json:"supports_slicing"`
}

// UpstoxCapability Upstox v2 preset
func UpstoxCapability() Capability {
	return Capability{
		BrokerName:          Upstox,
		SupportedSegments:   []string{"NSE_EQ", "BSE_EQ", "NSE_FO", "BSE_FO", "MCX", "CDS"},
		SupportedOrderTypes: []string{"MARKET", "LIMIT", "SL", "SL-M"},
		SupportedProducts:   []string{"I", "D", "CO", "MTF"},
		MaxOrdersPerBatch:   25,
		RateLimitPerMinute:  60,
		SupportsMultiOrder:  true,
		SupportsModify:      true,
		SupportsCancelMulti: true,
		SupportsExitAll:     true,
		SupportsSlicing:     true,
	}
}

// ZerodhaCapability Kite Connect preset
func ZerodhaCapability() Capability {
	return Capability{
		BrokerName:          Zerodha,
		SupportedSegments:   []string{"NSE", "BSE", "NFO", "BFO", "MCX", "CDS"},
		SupportedOrderTypes: []string{"MARKET", "LIMIT", "SL", "SL-M"},
		SupportedProducts:   []string{"MIS", "CNC", "NRML"},
		MaxOrdersPerBatch:   1,
		RateLimitPerMinute:  200,
		SupportsModify:      true,
		SupportsExitAll:     true,
	}
}

// FyersCapability Fyers API v3 preset
func FyersCapability() Capability {
	return Capability{
		BrokerName:          Fyers,
		SupportedSegments:   []string{"NSE", "BSE", "NFO", "MCX"},
		SupportedOrderTypes: []string{"MARKET", "LIMIT", "SL", "SL-M"},
		SupportedProducts:   []string{"INTRADAY", "CNC", "MARGIN"},
		MaxOrdersPerBatch:   1,
		RateLimitPerMinute:  100,
		SupportsModify:      true,
		SupportsCancelMulti: true,
	}
}

// Presets returns every built-in capability keyed by broker name
func Presets() map[string]Capability {
	return map[string]Capability{
		Upstox:  UpstoxCapability(),
		Zerodha: ZerodhaCapability(),
		Fyers:   FyersCapability(),
	}
}

// SupportsSegment reports whether an exchange segment ("NSE_FO") is served
func (c Capability) SupportsSegment(segment string) bool {
	return contains(c.SupportedSegments, strings.ToUpper(segment))
}

// SupportsOrderType reports whether t is accepted; an empty list accepts everything
func (c Capability) SupportsOrderType(t contracts.OrderType) bool {
	if len(c.SupportedOrderTypes) == 0 {
		return true
	}
	return contains(c.SupportedOrderTypes, t.VenueName())
}

// SupportsProduct reports whether product is accepted; an empty list accepts everything
func (c Capability) SupportsProduct(product string) bool {
	if len(c.SupportedProducts) == 0 {
		return true
	}
	return contains(c.SupportedProducts, strings.ToUpper(product))
}

// BatchSize is the largest batch a single venue call may carry
func (c Capability) BatchSize() int {
	if !c.SupportsMultiOrder || c.MaxOrdersPerBatch < 1 {
		return 1
	}
	return c.MaxOrdersPerBatch
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ApplyOverrides patches presets with routing-file capability entries.
// Brokers without a preset get a capability built from the override alone.
func ApplyOverrides(base map[string]Capability, overrides []strategyconfig.CapabilityOverride) (map[string]Capability, error) {
	out := make(map[string]Capability, len(base)+len(overrides))
	for name, c := range base {
		out[strings.ToUpper(name)] = c
	}

	for _, o := range overrides {
		name := strings.ToUpper(o.Broker)
		c, ok := out[name]
		if !ok {
			if o.MaxOrdersPerBatch == nil || o.RateLimitPerMinute == nil {
				return nil, fmt.Errorf("capability %s: no preset, max_orders_per_batch and rate_limit_per_minute are required", name)
			}
			c = Capability{BrokerName: name}
		}

		if o.SupportsMultiOrder != nil {
			c.SupportsMultiOrder = *o.SupportsMultiOrder
		}
		if o.SupportsModify != nil {
			c.SupportsModify = *o.SupportsModify
		}
		if o.SupportsCancelMulti != nil {
			c.SupportsCancelMulti = *o.SupportsCancelMulti
		}
		if o.SupportsExitAll != nil {
			c.SupportsExitAll = *o.SupportsExitAll
		}
		if o.SupportsSlicing != nil {
			c.SupportsSlicing = *o.SupportsSlicing
		}
		if o.MaxOrdersPerBatch != nil {
			c.MaxOrdersPerBatch = *o.MaxOrdersPerBatch
		}
		if o.RateLimitPerMinute != nil {
			c.RateLimitPerMinute = *o.RateLimitPerMinute
		}
		if len(o.Segments) > 0 {
			c.SupportedSegments = upperAll(o.Segments)
		}
		if len(o.OrderTypes) > 0 {
			c.SupportedOrderTypes = upperAll(o.OrderTypes)
		}
		if len(o.Products) > 0 {
			c.SupportedProducts = upperAll(o.Products)
		}

		if !c.SupportsMultiOrder && c.MaxOrdersPerBatch > 1 {
			return nil, fmt.Errorf("capability %s: max_orders_per_batch must be 1 without multi-order support", name)
		}
		out[name] = c
	}

	return out, nil
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	sort.Strings(out)
	return out
}
