package broker

import (
	"context"
	"strings"

	"github.com/Kvijay199428/VEGA-sub001/internal/strategyconfig"
)

// StaticSettings serves user broker priorities from the routing file
type StaticSettings struct {
	priorities map[string][]string
}

// NewStaticSettings builds settings from a user → priority map
func NewStaticSettings(priorities map[string][]string) *StaticSettings {
	out := make(map[string][]string, len(priorities))
	for user, list := range priorities {
		upper := make([]string, len(list))
		for i, b := range list {
			upper[i] = strings.ToUpper(b)
		}
		out[user] = upper
	}
	return &StaticSettings{priorities: out}
}

// BrokerPriority returns the user's priority list, or nil
func (s *StaticSettings) BrokerPriority(_ context.Context, userID string) ([]string, error) {
	return append([]string(nil), s.priorities[userID]...), nil
}

// StaticStrategies serves strategy → broker assignments from the routing file
type StaticStrategies struct {
	brokers map[string]string
}

// NewStaticStrategies builds a lookup from a tag → broker map
func NewStaticStrategies(brokers map[string]string) *StaticStrategies {
	out := make(map[string]string, len(brokers))
	for tag, b := range brokers {
		out[tag] = strings.ToUpper(b)
	}
	return &StaticStrategies{brokers: out}
}

// BrokerForStrategy returns the assigned broker for tag
func (s *StaticStrategies) BrokerForStrategy(_ context.Context, strategyTag string) (string, bool) {
	b, ok := s.brokers[strategyTag]
	return b, ok
}

// FromRoutingFile builds the resolvers and capability table from a routing file.
// A nil cfg yields empty resolvers and the presets.
func FromRoutingFile(cfg *strategyconfig.Config) (*StaticSettings, *StaticStrategies, map[string]Capability, error) {
	if cfg == nil {
		return NewStaticSettings(nil), NewStaticStrategies(nil), Presets(), nil
	}
	caps, err := ApplyOverrides(Presets(), cfg.Capabilities)
	if err != nil {
		return nil, nil, nil, err
	}
	return NewStaticSettings(cfg.UserPriorities()), NewStaticStrategies(cfg.StrategyBrokers()), caps, nil
}
