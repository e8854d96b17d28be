package contracts

import "time"

// AuditEventType classifies an audit entry
type AuditEventType string

const (
	AuditOrderPersisted AuditEventType = "ORDER_PERSISTED"
	AuditStatusChanged  AuditEventType = "STATUS_CHANGED"
	AuditOrderModified  AuditEventType = "ORDER_MODIFIED"
)

// AuditEvent is an immutable, append-only record of an order state change
// ⭐ SSOT: 주문 이력의 유일한 원천
type AuditEvent struct {
	Seq       int64             `json:"seq"` // append order, assigned by the store
	OrderID   string            `json:"order_id"`
	EventType AuditEventType    `json:"event_type"`
	Payload   map[string]string `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewPersistedEvent records a persisted order and its status
func NewPersistedEvent(order Order, at time.Time) AuditEvent {
	return AuditEvent{
		OrderID:   order.OrderID,
		EventType: AuditOrderPersisted,
		Payload:   map[string]string{"status": string(order.Status)},
		CreatedAt: at,
	}
}

// NewStatusChangedEvent records a status transition
func NewStatusChangedEvent(orderID string, oldStatus, newStatus Status, at time.Time) AuditEvent {
	return AuditEvent{
		OrderID:   orderID,
		EventType: AuditStatusChanged,
		Payload: map[string]string{
			"oldStatus": string(oldStatus),
			"newStatus": string(newStatus),
		},
		CreatedAt: at,
	}
}

// NewModifiedEvent records changed order terms; payload maps field name to new value
func NewModifiedEvent(orderID string, changes map[string]string, at time.Time) AuditEvent {
	payload := make(map[string]string, len(changes))
	for k, v := range changes {
		payload[k] = v
	}
	return AuditEvent{
		OrderID:   orderID,
		EventType: AuditOrderModified,
		Payload:   payload,
		CreatedAt: at,
	}
}
