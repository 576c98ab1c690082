package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/dwsmith1983/fleetmon/internal/metrics"
	"github.com/dwsmith1983/fleetmon/internal/scheduler"
	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// Task names as they appear in logs and health output.
const (
	TaskFlush  = "metric_flush"
	TaskSystem = "system_metrics"
	TaskSweep  = "threshold_sweep"
)

// Intervals sets the periods of the background tasks. Zero values use the
// defaults.
type Intervals struct {
	Flush         time.Duration
	System        time.Duration
	SystemBackoff time.Duration
	Sweep         time.Duration
}

// DefaultIntervals returns the standard task periods.
func DefaultIntervals() Intervals {
	return Intervals{
		Flush:         60 * time.Second,
		System:        30 * time.Second,
		SystemBackoff: 60 * time.Second,
		Sweep:         5 * time.Minute,
	}
}

// WithDefaults fills zero periods with the defaults.
func (iv Intervals) WithDefaults() Intervals {
	d := DefaultIntervals()
	if iv.Flush > 0 {
		d.Flush = iv.Flush
	}
	if iv.System > 0 {
		d.System = iv.System
	}
	if iv.SystemBackoff > 0 {
		d.SystemBackoff = iv.SystemBackoff
	}
	if iv.Sweep > 0 {
		d.Sweep = iv.Sweep
	}
	return d
}

// Tasks returns the background loops to hand to a scheduler.
func (m *Monitor) Tasks(iv Intervals) []scheduler.Task {
	iv = iv.WithDefaults()
	return []scheduler.Task{
		{Name: TaskFlush, Period: iv.Flush, Run: m.Flush},
		{Name: TaskSystem, Period: iv.System, ErrorBackoff: iv.SystemBackoff, Immediate: true, Run: m.CollectSystemMetrics},
		{Name: TaskSweep, Period: iv.Sweep, Run: m.CheckThresholds},
	}
}

// Flush persists staged snapshots. On failure the buffer is left intact so
// the next flush retries the same snapshots; snapshots staged while a flush
// is in progress are never discarded by it.
func (m *Monitor) Flush(ctx context.Context) error {
	pending, through := m.buffer.Peek()
	if len(pending) == 0 {
		return nil
	}

	if err := m.provider.PutSnapshots(ctx, pending, m.snapshotTTL); err != nil {
		m.count(metrics.MetricFlushesTotal, map[string]string{"result": "error"})
		m.logger.Error("metric flush failed", "bufferSize", m.buffer.Len(), "error", err)
		return fmt.Errorf("flushing %d snapshots: %w", len(pending), err)
	}

	m.buffer.DiscardThrough(through)
	m.count(metrics.MetricFlushesTotal, map[string]string{"result": "ok"})
	m.gauge(metrics.MetricBufferSize, nil, float64(m.buffer.Len()))
	m.logger.Debug("metrics flushed", "count", len(pending))
	return nil
}

// CollectSystemMetrics refreshes the driver and connection gauges from the
// system source and re-checks the connection threshold.
func (m *Monitor) CollectSystemMetrics(ctx context.Context) error {
	drivers, err := m.system.ActiveDriverCount(ctx)
	if err != nil {
		return fmt.Errorf("active driver count: %w", err)
	}
	conns, err := m.system.ActiveDatabaseConnections(ctx)
	if err != nil {
		return fmt.Errorf("active database connections: %w", err)
	}

	now := m.now()
	m.gauge(metrics.DriversActive, nil, float64(drivers))
	m.stage(metrics.DriversActive, types.MetricGauge, nil, float64(drivers), now)
	m.recordConnections(ctx, conns, false)
	return nil
}

// CheckThresholds evaluates the rolling request window: endpoints whose
// average latency exceeds the slow-endpoint bound raise a warning, and an
// overall 5xx rate above the error-rate threshold raises an error.
func (m *Monitor) CheckThresholds(ctx context.Context) error {
	stats := m.window.Stats(m.now())

	var total, errs int64
	for _, st := range stats {
		total += st.Requests
		errs += st.Errors

		avg := st.AvgDuration()
		if st.Requests == 0 || avg <= m.thresholds.SlowEndpoint {
			continue
		}
		m.alerts.CreateAlert(ctx, types.AlertLevelWarning,
			"Slow endpoint",
			fmt.Sprintf("%s averaged %.3fs over %s (threshold %.3fs)", st.Endpoint, avg, m.thresholds.Window, m.thresholds.SlowEndpoint),
			types.SourceSweep,
			map[string]interface{}{
				"endpoint":     st.Endpoint,
				"avg_duration": avg,
				"requests":     st.Requests,
				"threshold":    m.thresholds.SlowEndpoint,
			})
	}

	if total == 0 {
		return nil
	}
	rate := float64(errs) / float64(total) * 100
	if rate > m.thresholds.ErrorRate {
		m.alerts.CreateAlert(ctx, types.AlertLevelError,
			"High error rate",
			fmt.Sprintf("%.1f%% of %d requests failed over %s (threshold %.1f%%)", rate, total, m.thresholds.Window, m.thresholds.ErrorRate),
			types.SourceSweep,
			map[string]interface{}{
				"error_rate": rate,
				"errors":     errs,
				"requests":   total,
				"threshold":  m.thresholds.ErrorRate,
			})
	}
	return nil
}
