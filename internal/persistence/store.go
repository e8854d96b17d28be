package persistence

import (
	"context"
	"errors"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
)

var (
	// ErrOrderNotFound is returned when no order has the requested id
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition is returned when a status change would leave a terminal state or move backwards
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the storage behind the orchestrator. Implementations must be safe
// for concurrent use; the orchestrator serializes writes per order id.
type Store interface {
	GetOrder(ctx context.Context, orderID string) (contracts.Order, error) // ErrOrderNotFound when missing
	PutOrder(ctx context.Context, order contracts.Order) error
	OrdersByUser(ctx context.Context, userID string) ([]contracts.Order, error)
	AllOrders(ctx context.Context) ([]contracts.Order, error)

	AppendAudit(ctx context.Context, event contracts.AuditEvent) (contracts.AuditEvent, error)
	AuditLog(ctx context.Context, orderID string) ([]contracts.AuditEvent, error)

	PutCharges(ctx context.Context, charges contracts.OrderCharges) error
	GetCharges(ctx context.Context, orderID string) (*contracts.OrderCharges, error) // nil when none
	PutLatency(ctx context.Context, latency contracts.LatencyMetrics) error
	GetLatency(ctx context.Context, orderID string) (*contracts.LatencyMetrics, error) // nil when none
}
