package types

import "time"

// Metric is a single labeled observation.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Labels    map[string]string `json:"labels,omitempty"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricSnapshot is a buffered copy of a Metric waiting to be flushed to the
// durable store. ID is a ULID and embeds the snapshot time.
type MetricSnapshot struct {
	ID        string    `json:"id"`
	Metric    Metric    `json:"metric"`
	Timestamp time.Time `json:"timestamp"`
}

// Alert represents an alert event to be dispatched.
type Alert struct {
	AlertID   string                 `json:"alertId,omitempty"`
	Level     AlertLevel             `json:"level"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// HourBucket holds the cache hit/miss counters for one calendar hour.
type HourBucket struct {
	Family string `json:"family"`
	Hour   string `json:"hour"` // YYYYMMDDHH, UTC
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
}

// HitRate returns hits / (hits+misses) * 100, or 0 for an empty bucket.
func (b HourBucket) HitRate() float64 {
	total := b.Hits + b.Misses
	if total == 0 {
		return 0
	}
	return float64(b.Hits) / float64(total) * 100
}

// EndpointStats summarizes requests to one endpoint over a rolling window.
type EndpointStats struct {
	Endpoint      string  `json:"endpoint"`
	Requests      int64   `json:"requests"`
	Errors        int64   `json:"errors"`
	TotalDuration float64 `json:"totalDuration"` // seconds
}

// AvgDuration returns the mean request duration in seconds.
func (s EndpointStats) AvgDuration() float64 {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalDuration / float64(s.Requests)
}
