package contracts

import (
	"fmt"
	"strings"
)

// Status represents order lifecycle state
// PENDING → ACKNOWLEDGED → {OPEN, PARTIALLY_FILLED} → {FILLED, CANCELLED, REJECTED, EXPIRED}
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAcknowledged    Status = "ACKNOWLEDGED"
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// rank orders statuses along the state machine; OPEN and PARTIALLY_FILLED share a rank
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAcknowledged:
		return 1
	case StatusOpen, StatusPartiallyFilled:
		return 2
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return 3
	}
	return -1
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	return s.rank() >= 0
}

// IsComplete reports terminal states
func (s Status) IsComplete() bool {
	return s.rank() == 3
}

// IsModifiable reports states that still accept modify / cancel
func (s Status) IsModifiable() bool {
	return s.IsValid() && !s.IsComplete()
}

// IsWorking reports orders resting at the venue (positions for exit-all)
func (s Status) IsWorking() bool {
	return s == StatusOpen || s == StatusPartiallyFilled
}

// CanTransitionTo reports whether next is reachable from s.
// Terminal states never move; otherwise the rank must not go backwards.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.IsValid() || !next.IsValid() || s.IsComplete() {
		return false
	}
	return next.rank() >= s.rank()
}

// ParseStatus parses a status, accepting venue spellings ("complete", "cancelled", "open")
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_"))
	switch normalized {
	case "COMPLETE", "TRADED":
		return StatusFilled, nil
	case "CANCELED":
		return StatusCancelled, nil
	case "PUT_ORDER_REQ_RECEIVED", "VALIDATION_PENDING", "OPEN_PENDING":
		return StatusPending, nil
	case "TRIGGER_PENDING", "AFTER_MARKET_ORDER_REQ_RECEIVED":
		return StatusOpen, nil
	}

	s := Status(normalized)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown order status: %q", raw)
	}
	return s, nil
}
