package execution

import (
	"fmt"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/internal/strategyconfig"
	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
)

// Config holds batch placement rules
type Config struct {
	MaxBatchSize      int
	MaxCancelBatch    int
	MaintenanceWindow MaintenanceWindow
	AutoSlicing       bool
	RetryTransient    bool // re-place NETWORK_ERROR / TIMEOUT / RATE_LIMITED lines
}

// DefaultConfig returns 25-line batches, 50-id cancels and the 00:00-05:30 IST window
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:      25,
		MaxCancelBatch:    50,
		MaintenanceWindow: MaintenanceWindow{Start: 0, End: 5*time.Hour + 30*time.Minute, Location: istLocation()},
		AutoSlicing:       true,
	}
}

// ConfigFrom builds the execution config from the application config.
// A maintenance window in the routing file replaces the environment one.
func ConfigFrom(cfg *config.Config, routing *strategyconfig.Config) (Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Config{}, err
	}

	start, end := cfg.Orders.MaintenanceStart, cfg.Orders.MaintenanceEnd
	if routing != nil && routing.Trading.MaintenanceWindow.Start != "" {
		start, end = routing.Trading.MaintenanceWindow.Start, routing.Trading.MaintenanceWindow.End
	}
	window, err := NewMaintenanceWindow(start, end, loc)
	if err != nil {
		return Config{}, err
	}

	return Config{
		MaxBatchSize:      cfg.Orders.MaxBatchSize,
		MaxCancelBatch:    cfg.Orders.MaxCancelBatch,
		MaintenanceWindow: window,
		AutoSlicing:       cfg.Orders.AutoSlicing,
		RetryTransient:    cfg.Orders.RetryTransient,
	}, nil
}

// MaintenanceWindow is a daily [Start, End) range as offsets from local midnight.
// Start after End wraps past midnight; Start equal to End disables the window.
type MaintenanceWindow struct {
	Start    time.Duration
	End      time.Duration
	Location *time.Location
}

// NewMaintenanceWindow parses HH:MM bounds
func NewMaintenanceWindow(start, end string, loc *time.Location) (MaintenanceWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return MaintenanceWindow{}, fmt.Errorf("maintenance start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return MaintenanceWindow{}, fmt.Errorf("maintenance end: %w", err)
	}
	if loc == nil {
		loc = istLocation()
	}
	return MaintenanceWindow{Start: s, End: e, Location: loc}, nil
}

// Contains reports whether t falls inside the window in exchange local time
func (w MaintenanceWindow) Contains(t time.Time) bool {
	if w.Start == w.End {
		return false
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second

	if w.Start < w.End {
		return offset >= w.Start && offset < w.End
	}
	return offset >= w.Start || offset < w.End
}

// String renders the window as "00:00-05:30"
func (w MaintenanceWindow) String() string {
	return fmt.Sprintf("%s-%s", formatClock(w.Start), formatClock(w.End))
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// istLocation loads Asia/Kolkata, falling back to a fixed +05:30 zone without tzdata
func istLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*60*60+30*60)
}
