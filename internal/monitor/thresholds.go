package monitor

import (
	"fmt"
	"time"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// Thresholds holds the limits that turn observations into alerts.
type Thresholds struct {
	APILatency    float64       // seconds; a single request above this warns
	DriverScore   float64       // overall scores below this are an error
	DBConnections int           // active connections above this warn
	ErrorRate     float64       // percent of 5xx responses in the window
	SlowEndpoint  float64       // seconds; window average above this warns
	Window        time.Duration // rolling window for the sweep checks
}

// DefaultThresholds returns the standard alerting policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		APILatency:    2.0,
		DriverScore:   60,
		DBConnections: 50,
		ErrorRate:     5.0,
		SlowEndpoint:  1.0,
		Window:        5 * time.Minute,
	}
}

// ThresholdsFromConfig overlays non-zero config values on the defaults.
func ThresholdsFromConfig(cfg *types.ThresholdConfig) (Thresholds, error) {
	t := DefaultThresholds()
	if cfg == nil {
		return t, nil
	}
	if cfg.APILatency != 0 {
		t.APILatency = cfg.APILatency
	}
	if cfg.DriverScore != 0 {
		t.DriverScore = cfg.DriverScore
	}
	if cfg.DBConnections != 0 {
		t.DBConnections = cfg.DBConnections
	}
	if cfg.ErrorRate != 0 {
		t.ErrorRate = cfg.ErrorRate
	}
	if cfg.SlowEndpoint != 0 {
		t.SlowEndpoint = cfg.SlowEndpoint
	}
	if cfg.Window != "" {
		d, err := time.ParseDuration(cfg.Window)
		if err != nil {
			return Thresholds{}, fmt.Errorf("thresholds.window: %w", err)
		}
		t.Window = d
	}
	return t, t.Validate()
}

// Validate rejects limits that can never or always fire.
func (t Thresholds) Validate() error {
	switch {
	case t.APILatency <= 0:
		return fmt.Errorf("apiLatency must be positive, got %v", t.APILatency)
	case t.DriverScore <= 0 || t.DriverScore > 100:
		return fmt.Errorf("driverScore must be in (0, 100], got %v", t.DriverScore)
	case t.DBConnections <= 0:
		return fmt.Errorf("dbConnections must be positive, got %d", t.DBConnections)
	case t.ErrorRate <= 0 || t.ErrorRate >= 100:
		return fmt.Errorf("errorRate must be in (0, 100), got %v", t.ErrorRate)
	case t.SlowEndpoint <= 0:
		return fmt.Errorf("slowEndpoint must be positive, got %v", t.SlowEndpoint)
	case t.Window < time.Minute:
		return fmt.Errorf("window must be at least 1m, got %s", t.Window)
	}
	return nil
}
