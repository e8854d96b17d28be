package contracts

import "context"

// SettingsResolver provides a user's broker routing preferences
// ⭐ SSOT: 사용자 기본 브로커 조회 인터페이스
type SettingsResolver interface {
	// BrokerPriority returns brokers in preference order; empty means no preference
	BrokerPriority(ctx context.Context, userID string) ([]string, error)
}

// StrategyLookup maps a strategy tag to its assigned broker
// ⭐ SSOT: 전략별 브로커 배정 조회 인터페이스
type StrategyLookup interface {
	// BrokerForStrategy returns ("", false) when the strategy has no assignment
	BrokerForStrategy(ctx context.Context, strategyTag string) (string, bool)
}

// RiskChecker is consulted before an order line is sent to a venue.
// Margin and price-band rules live behind this interface.
type RiskChecker interface {
	CheckOrder(ctx context.Context, userID string, order Order) (*RiskDecision, error)
}

// RiskDecision is the outcome of a pre-trade risk check
type RiskDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
