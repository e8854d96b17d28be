package strategyconfig

// Config is the broker routing file: which venue serves which strategy tag,
// each user's broker priority, and per-broker capability overrides.
type Config struct {
	Meta         Meta                 `yaml:"meta" json:"meta"`
	Fallback     string               `yaml:"fallback" json:"fallback"`
	Strategies   []StrategyRoute      `yaml:"strategies" json:"strategies"`
	Users        []UserRoute          `yaml:"users" json:"users"`
	Capabilities []CapabilityOverride `yaml:"capabilities" json:"capabilities"`
	Trading      Trading              `yaml:"trading" json:"trading"`
}

// Meta 메타 정보
type Meta struct {
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
}

// StrategyRoute assigns a broker to a strategy tag
type StrategyRoute struct {
	Tag    string `yaml:"tag" json:"tag"`
	Broker string `yaml:"broker" json:"broker"`
}

// UserRoute lists a user's brokers in priority order; the first is the default
type UserRoute struct {
	UserID   string   `yaml:"user_id" json:"user_id"`
	Priority []string `yaml:"priority" json:"priority"`
}

// CapabilityOverride patches a broker's capability preset.
// Nil fields keep the preset value; a broker without a preset must set every field.
type CapabilityOverride struct {
	Broker              string   `yaml:"broker" json:"broker"`
	SupportsMultiOrder  *bool    `yaml:"supports_multi_order" json:"supports_multi_order,omitempty"`
	SupportsModify      *bool    `yaml:"supports_modify" json:"supports_modify,omitempty"`
	SupportsCancelMulti *bool    `yaml:"supports_cancel_multi" json:"supports_cancel_multi,omitempty"`
	SupportsExitAll     *bool    `yaml:"supports_exit_all" json:"supports_exit_all,omitempty"`
	SupportsSlicing     *bool    `yaml:"supports_slicing" json:"supports_slicing,omitempty"`
	MaxOrdersPerBatch   *int     `yaml:"max_orders_per_batch" json:"max_orders_per_batch,omitempty"`
	RateLimitPerMinute  *int     `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute,omitempty"`
	Segments            []string `yaml:"segments" json:"segments,omitempty"`
	OrderTypes          []string `yaml:"order_types" json:"order_types,omitempty"`
	Products            []string `yaml:"products" json:"products,omitempty"`
}

// Trading holds venue session rules
type Trading struct {
	MaintenanceWindow Window `yaml:"maintenance_window" json:"maintenance_window"`
}

// Window is an HH:MM range in exchange local time
type Window struct {
	Start string `yaml:"start" json:"start"` // HH:MM
	End   string `yaml:"end" json:"end"`     // HH:MM
}

// StrategyBrokers returns tag → broker
func (c *Config) StrategyBrokers() map[string]string {
	out := make(map[string]string, len(c.Strategies))
	for _, s := range c.Strategies {
		out[s.Tag] = s.Broker
	}
	return out
}

// UserPriorities returns user → broker priority list
func (c *Config) UserPriorities() map[string][]string {
	out := make(map[string][]string, len(c.Users))
	for _, u := range c.Users {
		out[u.UserID] = append([]string(nil), u.Priority...)
	}
	return out
}
