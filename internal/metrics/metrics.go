// Package metrics holds the Prometheus-backed metric registry for the fleet
// platform. All families are declared up front and registered once at
// startup; recording against an undeclared family is a programmer error.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// ErrUnknownFamily is returned when recording against a family that was not
// registered at construction.
var ErrUnknownFamily = errors.New("unknown metric family")

// Metric family names.
const (
	APIRequestsTotal     = "fleet_api_requests_total"
	APIRequestDuration   = "fleet_api_request_duration_seconds"
	DriverScore          = "fleet_driver_score"
	CacheOperationsTotal = "fleet_cache_operations_total"
	CacheHitRate         = "fleet_cache_hit_rate"
	DBConnectionsActive  = "fleet_db_connections_active"
	DriversActive        = "fleet_drivers_active"
	AlertsTotal          = "fleet_alerts_total"
	AlertSinkFailures    = "fleet_alert_sink_failures_total"
	MetricFlushesTotal   = "fleet_metric_flushes_total"
	MetricBufferSize     = "fleet_metric_buffer_size"
)

// Family describes one metric family.
type Family struct {
	Name    string
	Help    string
	Type    types.MetricType
	Labels  []string
	Buckets []float64 // histograms only; nil uses latencyBuckets
}

// Request latency buckets in seconds.
var latencyBuckets = []float64{
	.005, .01, .025, .05, .1, .25, .5, 1, 2, 2.5, 5, 10,
}

// Driver scores are 0-100.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// Families is the full set of metric families exposed by the engine.
var Families = []Family{
	{Name: APIRequestsTotal, Help: "Total API requests", Type: types.MetricCounter, Labels: []string{"method", "endpoint", "status_code"}},
	{Name: APIRequestDuration, Help: "API request latency in seconds", Type: types.MetricHistogram, Labels: []string{"method", "endpoint"}, Buckets: latencyBuckets},
	{Name: DriverScore, Help: "Driver performance scores", Type: types.MetricHistogram, Labels: []string{"organization_id", "score_type"}, Buckets: scoreBuckets},
	{Name: CacheOperationsTotal, Help: "Cache lookups by result", Type: types.MetricCounter, Labels: []string{"operation", "result"}},
	{Name: CacheHitRate, Help: "Cache hit rate over the current hour, percent", Type: types.MetricGauge},
	{Name: DBConnectionsActive, Help: "Active database connections", Type: types.MetricGauge},
	{Name: DriversActive, Help: "Drivers currently on shift", Type: types.MetricGauge},
	{Name: AlertsTotal, Help: "Alerts raised by level", Type: types.MetricCounter, Labels: []string{"level"}},
	{Name: AlertSinkFailures, Help: "Failed alert deliveries by sink", Type: types.MetricCounter, Labels: []string{"sink"}},
	{Name: MetricFlushesTotal, Help: "Snapshot buffer flushes by result", Type: types.MetricCounter, Labels: []string{"result"}},
	{Name: MetricBufferSize, Help: "Snapshots waiting to be flushed", Type: types.MetricGauge},
}

// Registry is a fixed set of labeled counters, histograms and gauges.
// The maps are written only during construction, so lookups need no lock;
// the vectors themselves are safe for concurrent use.
type Registry struct {
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// New registers the given families (Families when none are passed) with reg.
// It panics on an invalid or duplicate family, so misconfiguration surfaces
// at startup rather than on the request path.
func New(reg prometheus.Registerer, families ...Family) *Registry {
	if len(families) == 0 {
		families = Families
	}
	r := &Registry{
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
	for _, f := range families {
		if r.has(f.Name) {
			panic(fmt.Sprintf("metrics: duplicate family %q", f.Name))
		}
		switch f.Type {
		case types.MetricCounter:
			v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: f.Name, Help: f.Help}, f.Labels)
			reg.MustRegister(v)
			r.counters[f.Name] = v
		case types.MetricHistogram:
			buckets := f.Buckets
			if buckets == nil {
				buckets = latencyBuckets
			}
			v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: f.Name, Help: f.Help, Buckets: buckets}, f.Labels)
			reg.MustRegister(v)
			r.histograms[f.Name] = v
		case types.MetricGauge:
			v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: f.Name, Help: f.Help}, f.Labels)
			reg.MustRegister(v)
			r.gauges[f.Name] = v
		default:
			panic(fmt.Sprintf("metrics: family %q has unknown type %q", f.Name, f.Type))
		}
	}
	return r
}

func (r *Registry) has(name string) bool {
	_, c := r.counters[name]
	_, h := r.histograms[name]
	_, g := r.gauges[name]
	return c || h || g
}

// RecordCounter increments a labeled counter by one.
func (r *Registry) RecordCounter(name string, labels map[string]string) error {
	return r.AddCounter(name, labels, 1)
}

// AddCounter adds delta to a labeled counter. Negative deltas are rejected.
func (r *Registry) AddCounter(name string, labels map[string]string, delta float64) error {
	v, ok := r.counters[name]
	if !ok {
		return fmt.Errorf("counter %s: %w", name, ErrUnknownFamily)
	}
	if delta < 0 {
		return fmt.Errorf("counter %s: negative delta %v", name, delta)
	}
	c, err := v.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("counter %s: %w", name, err)
	}
	c.Add(delta)
	return nil
}

// ObserveHistogram records one observation.
func (r *Registry) ObserveHistogram(name string, labels map[string]string, value float64) error {
	v, ok := r.histograms[name]
	if !ok {
		return fmt.Errorf("histogram %s: %w", name, ErrUnknownFamily)
	}
	o, err := v.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("histogram %s: %w", name, err)
	}
	o.Observe(value)
	return nil
}

// SetGauge overwrites a labeled gauge.
func (r *Registry) SetGauge(name string, labels map[string]string, value float64) error {
	v, ok := r.gauges[name]
	if !ok {
		return fmt.Errorf("gauge %s: %w", name, ErrUnknownFamily)
	}
	g, err := v.GetMetricWith(labels)
	if err != nil {
		return fmt.Errorf("gauge %s: %w", name, err)
	}
	g.Set(value)
	return nil
}

// Value reads the current value of a series: the total for counters, the
// current value for gauges and the observation count for histograms.
func (r *Registry) Value(name string, labels map[string]string) (float64, error) {
	var (
		m   prometheus.Metric
		err error
	)
	switch {
	case r.counters[name] != nil:
		m, err = r.counters[name].GetMetricWith(labels)
	case r.gauges[name] != nil:
		m, err = r.gauges[name].GetMetricWith(labels)
	case r.histograms[name] != nil:
		var o prometheus.Observer
		o, err = r.histograms[name].GetMetricWith(labels)
		if err == nil {
			m = o.(prometheus.Metric)
		}
	default:
		return 0, fmt.Errorf("%s: %w", name, ErrUnknownFamily)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return 0, fmt.Errorf("%s: reading series: %w", name, err)
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue(), nil
	case out.Gauge != nil:
		return out.Gauge.GetValue(), nil
	case out.Histogram != nil:
		return float64(out.Histogram.GetSampleCount()), nil
	}
	return 0, fmt.Errorf("%s: unsupported series type", name)
}
