package alert

import (
	"context"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// LevelFilterSink forwards only alerts at or above a minimum level.
type LevelFilterSink struct {
	next Sink
	min  types.AlertLevel
}

// NewLevelFilterSink wraps next so alerts below min are dropped.
func NewLevelFilterSink(next Sink, min types.AlertLevel) *LevelFilterSink {
	return &LevelFilterSink{next: next, min: min}
}

func (s *LevelFilterSink) Name() string { return s.next.Name() }

// Send forwards the alert when it is severe enough. Dropped alerts are not errors.
func (s *LevelFilterSink) Send(ctx context.Context, alert types.Alert) error {
	if !alert.Level.AtLeast(s.min) {
		return nil
	}
	return s.next.Send(ctx, alert)
}

func (s *LevelFilterSink) Close() error { return closeSink(s.next) }
