// Package types defines the public domain types for the fleetmon monitoring engine.
package types

// MetricType identifies how a metric family aggregates observations.
type MetricType string

// MetricType values enumerate the supported metric families.
const (
	MetricCounter   MetricType = "counter"
	MetricHistogram MetricType = "histogram"
	MetricGauge     MetricType = "gauge"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertEmail   AlertType = "email"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelError    AlertLevel = "error"
	AlertLevelCritical AlertLevel = "critical"
)

// Severity orders alert levels so sinks can filter by minimum level.
func (l AlertLevel) Severity() int {
	switch l {
	case AlertLevelInfo:
		return 1
	case AlertLevelWarning:
		return 2
	case AlertLevelError:
		return 3
	case AlertLevelCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as min or more.
func (l AlertLevel) AtLeast(min AlertLevel) bool {
	return l.Severity() >= min.Severity()
}

// Alert sources identify which part of the engine raised an alert.
const (
	SourceAPI      = "api_monitor"
	SourceDriver   = "driver_monitor"
	SourceDatabase = "database_monitor"
	SourceSweep    = "threshold_monitor"
)
