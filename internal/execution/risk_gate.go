package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// =============================================================================
// RiskGate - 주문 전 리스크 게이트
// =============================================================================

// GateMode 게이트 동작 모드
type GateMode string

const (
	GateModeShadow  GateMode = "shadow"  // 로깅만, 실제 차단 안함
	GateModeEnforce GateMode = "enforce" // 실제 차단
	GateModeOff     GateMode = "off"     // 비활성화
)

// ParseGateMode parses off / shadow / enforce
func ParseGateMode(s string) (GateMode, error) {
	switch m := GateMode(strings.ToLower(strings.TrimSpace(s))); m {
	case GateModeShadow, GateModeEnforce, GateModeOff:
		return m, nil
	case "":
		return GateModeShadow, nil
	}
	return "", fmt.Errorf("invalid risk gate mode: %q", s)
}

// AllowAll is a RiskChecker that approves every order
type AllowAll struct{}

// CheckOrder approves the order
func (AllowAll) CheckOrder(_ context.Context, _ string, _ contracts.Order) (*contracts.RiskDecision, error) {
	return &contracts.RiskDecision{Allowed: true}, nil
}

// CheckerFunc adapts a function to contracts.RiskChecker
type CheckerFunc func(ctx context.Context, userID string, order contracts.Order) (*contracts.RiskDecision, error)

// CheckOrder calls f
func (f CheckerFunc) CheckOrder(ctx context.Context, userID string, order contracts.Order) (*contracts.RiskDecision, error) {
	return f(ctx, userID, order)
}

// RiskGate consults the risk checker before an order line reaches a venue
// ⭐ SSOT: 주문 전 리스크 체크는 여기서만
type RiskGate struct {
	checker contracts.RiskChecker
	clock   clock.Clock
	logger  *logger.Logger
	runID   string

	mu   sync.RWMutex
	mode GateMode
}

// NewRiskGate 새 리스크 게이트 생성
func NewRiskGate(checker contracts.RiskChecker, mode GateMode, clk clock.Clock, log *logger.Logger) *RiskGate {
	if checker == nil {
		checker = AllowAll{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &RiskGate{
		checker: checker,
		clock:   clk,
		logger:  log.WithComponent("risk_gate"),
		mode:    mode,
		runID:   fmt.Sprintf("gate_%s", clk.Now().Format("20060102_150405")),
	}
}

// GateCheckResult 게이트 체크 결과
type GateCheckResult struct {
	Passed     bool      `json:"passed"`
	Mode       GateMode  `json:"mode"`
	WouldBlock bool      `json:"would_block"` // Shadow 모드에서 차단됐을지 여부
	Reason     string    `json:"reason,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
	RunID      string    `json:"run_id"`
}

// Check 주문 전 리스크 체크 실행
func (g *RiskGate) Check(ctx context.Context, userID string, order contracts.Order) GateCheckResult {
	mode := g.GetMode()
	result := GateCheckResult{
		Mode:      mode,
		CheckedAt: g.clock.Now(),
		RunID:     g.runID,
	}

	// 게이트가 꺼져있으면 통과
	if mode == GateModeOff {
		result.Passed = true
		return result
	}

	decision, err := g.checker.CheckOrder(ctx, userID, order)
	if err != nil {
		g.logger.WithFields(map[string]interface{}{
			"correlation_id": order.CorrelationID,
			"error":          err.Error(),
		}).Warn("Risk check unavailable, passing gate")
		result.Passed = true
		result.Reason = "risk check unavailable"
		return result
	}

	if decision == nil || decision.Allowed {
		result.Passed = true
		return result
	}

	result.WouldBlock = true
	result.Reason = decision.Reason

	switch mode {
	case GateModeShadow:
		// Shadow 모드: 통과하되 로깅
		result.Passed = true
		g.logShadowBlock(userID, order, result)
	default:
		result.Passed = false
		g.logEnforceBlock(userID, order, result)
	}

	return result
}

func (g *RiskGate) logShadowBlock(userID string, order contracts.Order, result GateCheckResult) {
	g.logger.WithFields(map[string]interface{}{
		"run_id":         result.RunID,
		"user_id":        userID,
		"correlation_id": order.CorrelationID,
		"instrument":     order.InstrumentKey,
		"quantity":       order.Quantity,
		"reason":         result.Reason,
	}).Warn("🚨 SHADOW BLOCK: Would have blocked order")
}

func (g *RiskGate) logEnforceBlock(userID string, order contracts.Order, result GateCheckResult) {
	g.logger.WithFields(map[string]interface{}{
		"run_id":         result.RunID,
		"user_id":        userID,
		"correlation_id": order.CorrelationID,
		"instrument":     order.InstrumentKey,
		"quantity":       order.Quantity,
		"reason":         result.Reason,
	}).Error("🚫 ENFORCE BLOCK: Order blocked due to risk violation")
}

// SetMode 모드 변경
func (g *RiskGate) SetMode(mode GateMode) {
	g.mu.Lock()
	old := g.mode
	g.mode = mode
	g.mu.Unlock()

	g.logger.WithFields(map[string]interface{}{
		"old_mode": old,
		"new_mode": mode,
	}).Info("Risk gate mode changed")
}

// GetMode 현재 모드 조회
func (g *RiskGate) GetMode() GateMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// IsEnabled 게이트 활성화 여부
func (g *RiskGate) IsEnabled() bool {
	return g.GetMode() != GateModeOff
}

// IsShadowMode Shadow 모드 여부
func (g *RiskGate) IsShadowMode() bool {
	return g.GetMode() == GateModeShadow
}
