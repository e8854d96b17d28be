package strategyconfig

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var hhmm = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Strategies ===
	seenTags := make(map[string]bool, len(cfg.Strategies))
	for i, s := range cfg.Strategies {
		field := fmt.Sprintf("strategies[%d]", i)
		if s.Tag == "" {
			return ValidationError{field + ".tag", "required"}
		}
		if s.Broker == "" {
			return ValidationError{field + ".broker", "required"}
		}
		if seenTags[s.Tag] {
			return ValidationError{field + ".tag", fmt.Sprintf("duplicate tag %q", s.Tag)}
		}
		seenTags[s.Tag] = true
	}

	// === Users ===
	seenUsers := make(map[string]bool, len(cfg.Users))
	for i, u := range cfg.Users {
		field := fmt.Sprintf("users[%d]", i)
		if u.UserID == "" {
			return ValidationError{field + ".user_id", "required"}
		}
		if len(u.Priority) == 0 {
			return ValidationError{field + ".priority", "must list at least one broker"}
		}
		if seenUsers[u.UserID] {
			return ValidationError{field + ".user_id", fmt.Sprintf("duplicate user %q", u.UserID)}
		}
		seenUsers[u.UserID] = true
	}

	// === Capabilities ===
	seenBrokers := make(map[string]bool, len(cfg.Capabilities))
	for i, c := range cfg.Capabilities {
		field := fmt.Sprintf("capabilities[%d]", i)
		if c.Broker == "" {
			return ValidationError{field + ".broker", "required"}
		}
		if seenBrokers[c.Broker] {
			return ValidationError{field + ".broker", fmt.Sprintf("duplicate broker %q", c.Broker)}
		}
		seenBrokers[c.Broker] = true

		if c.MaxOrdersPerBatch != nil && *c.MaxOrdersPerBatch < 1 {
			return ValidationError{field + ".max_orders_per_batch", "must be >= 1"}
		}
		if c.RateLimitPerMinute != nil && *c.RateLimitPerMinute < 1 {
			return ValidationError{field + ".rate_limit_per_minute", "must be >= 1"}
		}
		// A single-order venue cannot batch
		if c.SupportsMultiOrder != nil && !*c.SupportsMultiOrder &&
			c.MaxOrdersPerBatch != nil && *c.MaxOrdersPerBatch > 1 {
			return ValidationError{field + ".max_orders_per_batch", "must be 1 when supports_multi_order is false"}
		}
	}

	// === Trading ===
	w := cfg.Trading.MaintenanceWindow
	if w.Start != "" || w.End != "" {
		if err := validateHHMM(w.Start); err != nil {
			return ValidationError{"trading.maintenance_window.start", err.Error()}
		}
		if err := validateHHMM(w.End); err != nil {
			return ValidationError{"trading.maintenance_window.end", err.Error()}
		}

		startTime, _ := time.Parse("15:04", w.Start)
		endTime, _ := time.Parse("15:04", w.End)
		if !startTime.Before(endTime) {
			return ValidationError{"trading.maintenance_window", "start must be before end"}
		}
	}

	return nil
}

// === Helper Functions ===

func validateHHMM(s string) error {
	if !hhmm.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}
