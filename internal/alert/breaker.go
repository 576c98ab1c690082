package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// Breaker defaults for network sinks.
const (
	breakerFailures = 5
	breakerTimeout  = 60 * time.Second
	breakerInterval = 5 * time.Minute
)

// BreakerSink wraps a network sink so that after repeated failures alerts
// fail fast instead of each waiting out the sink timeout.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSink wraps next in a circuit breaker that opens after five
// consecutive failures and probes again after a minute.
func NewBreakerSink(next Sink, logger *slog.Logger) *BreakerSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerSink{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: 1,
			Interval:    breakerInterval,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("alert sink circuit changed", "sink", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Name returns the wrapped sink's identifier.
func (s *BreakerSink) Name() string { return s.next.Name() }

// State reports the breaker state.
func (s *BreakerSink) State() gobreaker.State { return s.cb.State() }

// Send delivers through the breaker. While open it returns
// gobreaker.ErrOpenState without calling the wrapped sink.
func (s *BreakerSink) Send(ctx context.Context, alert types.Alert) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Send(ctx, alert)
	})
	return err
}

// Close closes the wrapped sink.
func (s *BreakerSink) Close() error { return closeSink(s.next) }
