package ratelimit

import "fmt"

// NearingThreshold is the utilisation (percent) above which a window counts as nearly full
const NearingThreshold = 80.0

// Usage is a snapshot of window occupancy
type Usage struct {
	PerSecond      int `json:"per_second"`
	PerSecondLimit int `json:"per_second_limit"`
	PerMinute      int `json:"per_minute"`
	PerMinuteLimit int `json:"per_minute_limit"`
	Per30Min       int `json:"per_30min"`
	Per30MinLimit  int `json:"per_30min_limit"`
}

func utilization(count, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(count) / float64(limit) * 100
}

// PerSecondUtilization in percent
func (u Usage) PerSecondUtilization() float64 { return utilization(u.PerSecond, u.PerSecondLimit) }

// PerMinuteUtilization in percent
func (u Usage) PerMinuteUtilization() float64 { return utilization(u.PerMinute, u.PerMinuteLimit) }

// Per30MinUtilization in percent
func (u Usage) Per30MinUtilization() float64 { return utilization(u.Per30Min, u.Per30MinLimit) }

// HighestUtilization is the fullest window in percent
func (u Usage) HighestUtilization() float64 {
	return max(u.PerSecondUtilization(), u.PerMinuteUtilization(), u.Per30MinUtilization())
}

// IsNearingLimit reports whether any window is above NearingThreshold
func (u Usage) IsNearingLimit() bool {
	return u.HighestUtilization() > NearingThreshold
}

func (u Usage) String() string {
	return fmt.Sprintf("per_sec=%d/%d (%.1f%%), per_min=%d/%d (%.1f%%), per_30min=%d/%d (%.1f%%)",
		u.PerSecond, u.PerSecondLimit, u.PerSecondUtilization(),
		u.PerMinute, u.PerMinuteLimit, u.PerMinuteUtilization(),
		u.Per30Min, u.Per30MinLimit, u.Per30MinUtilization())
}
