// Package monitor is the recording surface of the engine. Request handlers
// and jobs call the Record methods; each updates metrics, stages a snapshot
// for the durable store and raises inline threshold alerts. Recording never
// returns an error to the caller.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/fleetmon/internal/alert"
	"github.com/dwsmith1983/fleetmon/internal/metrics"
	"github.com/dwsmith1983/fleetmon/internal/provider"
	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// CacheFamily is the hour-bucket family holding cache hit/miss counters.
const CacheFamily = "cache"

const (
	cacheBucketTTL      = time.Hour
	defaultStoreTimeout = 500 * time.Millisecond
)

// Options configures a Monitor. Registry, Dispatcher and Provider are required.
type Options struct {
	Registry   *metrics.Registry
	Dispatcher *alert.Dispatcher
	Provider   provider.Provider
	System     SystemSource
	Thresholds Thresholds
	Logger     *slog.Logger

	// BufferMax caps staged snapshots. Defaults to DefaultBufferMax.
	BufferMax int
	// StoreTimeout bounds each store call made on the recording path.
	StoreTimeout time.Duration
	// SnapshotTTL is how long flushed snapshots live in the store.
	SnapshotTTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Monitor records fleet performance observations.
type Monitor struct {
	registry     *metrics.Registry
	alerts       *alert.Dispatcher
	provider     provider.Provider
	system       SystemSource
	thresholds   Thresholds
	logger       *slog.Logger
	buffer       *Buffer
	window       *RequestWindow
	storeTimeout time.Duration
	snapshotTTL  time.Duration
	now          func() time.Time
}

// New builds a Monitor from opts.
func New(opts Options) (*Monitor, error) {
	if opts.Registry == nil {
		return nil, errors.New("monitor: registry is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("monitor: dispatcher is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("monitor: provider is required")
	}
	th := opts.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("monitor: thresholds: %w", err)
	}

	m := &Monitor{
		registry:     opts.Registry,
		alerts:       opts.Dispatcher,
		provider:     opts.Provider,
		system:       opts.System,
		thresholds:   th,
		logger:       opts.Logger,
		buffer:       NewBuffer(opts.BufferMax),
		window:       NewRequestWindow(th.Window),
		storeTimeout: opts.StoreTimeout,
		snapshotTTL:  opts.SnapshotTTL,
		now:          opts.Now,
	}
	if m.system == nil {
		m.system = DefaultStaticSource
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.storeTimeout <= 0 {
		m.storeTimeout = defaultStoreTimeout
	}
	if m.snapshotTTL <= 0 {
		m.snapshotTTL = 24 * time.Hour
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Thresholds returns the active alerting limits.
func (m *Monitor) Thresholds() Thresholds { return m.thresholds }

// Buffer exposes the snapshot buffer for health reporting.
func (m *Monitor) Buffer() *Buffer { return m.buffer }

// AddAlertHandler registers an additional alert sink.
func (m *Monitor) AddAlertHandler(s alert.Sink) {
	m.alerts.AddSink(s)
}

// RecordAPIRequest records one completed HTTP request. A request slower than
// the latency threshold raises a warning.
func (m *Monitor) RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration, userID string) {
	defer m.guard("api_request")

	now := m.now()
	secs := duration.Seconds()

	m.count(metrics.APIRequestsTotal, map[string]string{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": strconv.Itoa(statusCode),
	})
	labels := map[string]string{"method": method, "endpoint": endpoint}
	m.observe(metrics.APIRequestDuration, labels, secs)
	m.window.Observe(endpoint, statusCode, secs, now)
	m.stage(metrics.APIRequestDuration, types.MetricHistogram, labels, secs, now)

	attrs := []any{"method", method, "endpoint", endpoint, "statusCode", statusCode, "duration", secs}
	if userID != "" {
		attrs = append(attrs, "userId", userID)
	}
	m.logger.Info("api request", attrs...)

	if secs > m.thresholds.APILatency {
		m.alerts.CreateAlertAsync(types.AlertLevelWarning,
			"latency threshold exceeded",
			fmt.Sprintf("%s %s took %.3fs (threshold %.3fs)", method, endpoint, secs, m.thresholds.APILatency),
			types.SourceAPI,
			map[string]interface{}{
				"method":      method,
				"endpoint":    endpoint,
				"status_code": statusCode,
				"duration":    secs,
				"threshold":   m.thresholds.APILatency,
			})
	}
}

// RecordDriverPerformance records a driver's scores. An overall score below
// the driver threshold raises an error alert.
func (m *Monitor) RecordDriverPerformance(driverID, organizationID string, safety, eco, overall float64) {
	defer m.guard("driver_performance")

	now := m.now()
	for scoreType, v := range map[string]float64{
		"safety":  safety,
		"eco":     eco,
		"overall": overall,
	} {
		labels := map[string]string{"organization_id": organizationID, "score_type": scoreType}
		m.observe(metrics.DriverScore, labels, v)
		m.stage(metrics.DriverScore, types.MetricHistogram, labels, v, now)
	}

	if overall < m.thresholds.DriverScore {
		m.alerts.CreateAlertAsync(types.AlertLevelError,
			"Low driver performance",
			fmt.Sprintf("driver %s scored %.1f (threshold %.1f)", driverID, overall, m.thresholds.DriverScore),
			types.SourceDriver,
			map[string]interface{}{
				"driver_id":       driverID,
				"organization_id": organizationID,
				"safety_score":    safety,
				"eco_score":       eco,
				"overall_score":   overall,
				"threshold":       m.thresholds.DriverScore,
			})
	}
}

// RecordCacheMetrics records one cache lookup and refreshes the hit-rate gauge
// from the current hour's bucket. Store failures are logged and the gauge
// keeps its previous value.
func (m *Monitor) RecordCacheMetrics(ctx context.Context, operation string, hit bool) {
	defer m.guard("cache")

	result := "miss"
	if hit {
		result = "hit"
	}
	m.count(metrics.CacheOperationsTotal, map[string]string{"operation": operation, "result": result})

	now := m.now()
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	bucket, err := m.provider.IncrBucket(ctx, CacheFamily, HourKey(now), hit, cacheBucketTTL)
	if err != nil {
		m.logger.Warn("cache bucket update failed", "operation", operation, "error", err)
		return
	}
	rate := bucket.HitRate()
	m.gauge(metrics.CacheHitRate, nil, rate)
	m.stage(metrics.CacheHitRate, types.MetricGauge, nil, rate, now)
}

// RecordDatabaseConnections records the active connection count. A count
// above the connection threshold raises a warning.
func (m *Monitor) RecordDatabaseConnections(active int) {
	defer m.guard("db_connections")
	m.recordConnections(context.Background(), active, true)
}

func (m *Monitor) recordConnections(ctx context.Context, active int, async bool) {
	v := float64(active)
	m.gauge(metrics.DBConnectionsActive, nil, v)
	m.stage(metrics.DBConnectionsActive, types.MetricGauge, nil, v, m.now())

	if active <= m.thresholds.DBConnections {
		return
	}
	title := "High database connection count"
	msg := fmt.Sprintf("%d active connections (threshold %d)", active, m.thresholds.DBConnections)
	meta := map[string]interface{}{
		"active_connections": active,
		"threshold":          m.thresholds.DBConnections,
	}
	if async {
		m.alerts.CreateAlertAsync(types.AlertLevelWarning, title, msg, types.SourceDatabase, meta)
		return
	}
	m.alerts.CreateAlert(ctx, types.AlertLevelWarning, title, msg, types.SourceDatabase, meta)
}

// HourKey returns the UTC calendar hour, YYYYMMDDHH, used to bucket cache
// counters.
func HourKey(t time.Time) string {
	return t.UTC().Format("2006010215")
}

// stage queues a snapshot for the flush task. NaN and infinite values have no
// JSON encoding and are skipped so they cannot wedge the buffer.
func (m *Monitor) stage(name string, typ types.MetricType, labels map[string]string, value float64, at time.Time) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		m.logger.Warn("skipping non-finite metric value", "metric", name, "labels", labels, "value", value)
		return
	}
	snap := types.MetricSnapshot{
		ID: ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Metric: types.Metric{
			Name:      name,
			Type:      typ,
			Labels:    copyLabels(labels),
			Value:     value,
			Timestamp: at.UTC(),
		},
		Timestamp: at.UTC(),
	}
	if !m.buffer.Append(snap) {
		m.logger.Warn("metric buffer full, dropped oldest snapshot", "bufferMax", m.buffer.max)
	}
	m.gauge(metrics.MetricBufferSize, nil, float64(m.buffer.Len()))
}

func copyLabels(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Monitor) count(name string, labels map[string]string) {
	if err := m.registry.RecordCounter(name, labels); err != nil {
		m.logger.Warn("metric update failed", "metric", name, "error", err)
	}
}

func (m *Monitor) observe(name string, labels map[string]string, v float64) {
	if err := m.registry.ObserveHistogram(name, labels, v); err != nil {
		m.logger.Warn("metric update failed", "metric", name, "error", err)
	}
}

func (m *Monitor) gauge(name string, labels map[string]string, v float64) {
	if err := m.registry.SetGauge(name, labels, v); err != nil {
		m.logger.Warn("metric update failed", "metric", name, "error", err)
	}
}

// guard keeps a recording failure from reaching the caller's request path.
func (m *Monitor) guard(op string) {
	if r := recover(); r != nil {
		m.logger.Error("recording failed", "op", op, "panic", r)
	}
}
