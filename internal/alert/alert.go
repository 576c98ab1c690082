// Package alert implements alert construction and dispatching to multiple sinks.
package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/fleetmon/internal/metrics"
	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// DefaultSinkTimeout bounds a single sink delivery.
const DefaultSinkTimeout = 10 * time.Second

// ErrSinkTimeout is reported when a sink does not return within the
// dispatcher's per-sink timeout.
var ErrSinkTimeout = errors.New("alert sink timed out")

// Sink is an alert destination.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
	Name() string
}

// Dispatcher builds alerts and routes them to registered sinks. Sinks are
// invoked in registration order; each one is isolated from the others.
type Dispatcher struct {
	mu      sync.RWMutex
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
	metrics *metrics.Registry
	now     func() time.Time

	// closeMu orders inflight.Add against Close so Wait never races a new delivery.
	closeMu  sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSinkTimeout overrides DefaultSinkTimeout.
func WithSinkTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithMetrics counts raised alerts and sink failures in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(d *Dispatcher) { d.metrics = reg }
}

// WithClock replaces time.Now for alert timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher from alert configs.
func NewDispatcher(configs []types.AlertConfig, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger:  logger,
		timeout: DefaultSinkTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	for _, cfg := range configs {
		sink, err := newSink(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// AddSink registers another sink. Registration is append-only and safe to
// call while alerts are flowing.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

// Sinks returns the registered sink names in order.
func (d *Dispatcher) Sinks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// CreateAlert builds an alert, logs it, and delivers it to every sink
// before returning. Sink failures are logged and never returned.
func (d *Dispatcher) CreateAlert(ctx context.Context, level types.AlertLevel, title, message, source string, metadata map[string]interface{}) types.Alert {
	a := types.Alert{
		AlertID:   ulid.Make().String(),
		Level:     level,
		Title:     title,
		Message:   message,
		Source:    source,
		Timestamp: d.now().UTC(),
		Metadata:  metadata,
	}
	d.Dispatch(ctx, a)
	return a
}

// CreateAlertAsync runs CreateAlert on a detached goroutine so the caller
// never waits on sink delivery. Use Wait or Close to drain. Once Close has
// been called the alert is logged and dropped.
func (d *Dispatcher) CreateAlertAsync(level types.AlertLevel, title, message, source string, metadata map[string]interface{}) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		d.logger.Warn("alert dropped, dispatcher closed", "level", level, "title", title, "source", source)
		return
	}
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.CreateAlert(context.Background(), level, title, message, source, metadata)
	}()
}

// Dispatch logs the alert and sends it to all registered sinks.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) {
	d.logger.Log(ctx, logLevel(alert.Level), "alert raised",
		"alertId", alert.AlertID,
		"level", alert.Level,
		"title", alert.Title,
		"message", alert.Message,
		"source", alert.Source,
		"metadata", alert.Metadata,
	)
	d.count(metrics.AlertsTotal, "level", string(alert.Level))

	d.mu.RLock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, sink := range sinks {
		if err := d.send(ctx, sink, alert); err != nil {
			d.logger.Error("alert delivery failed",
				"sink", sink.Name(),
				"alertId", alert.AlertID,
				"error", err,
			)
			d.count(metrics.AlertSinkFailures, "sink", sink.Name())
		}
	}
}

// send delivers to one sink under the per-sink timeout. A sink that ignores
// its context is abandoned when the timeout fires; its goroutine finishes
// on its own.
func (d *Dispatcher) send(ctx context.Context, sink Sink, alert types.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sink panicked: %v", r)
			}
		}()
		done <- sink.Send(ctx, alert)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrSinkTimeout, d.timeout)
		}
		return ctx.Err()
	}
}

// Wait blocks until all alerts started with CreateAlertAsync are delivered.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close stops new async deliveries, waits for in-flight ones or until ctx is
// done, then closes every sink that holds a resource. Sinks stay open if the
// wait times out.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeMu.Lock()
	d.closed = true
	d.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for alert delivery: %w", ctx.Err())
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	var errs []error
	for _, s := range d.sinks {
		if err := closeSink(s); err != nil {
			errs = append(errs, fmt.Errorf("closing sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func closeSink(s Sink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Dispatcher) count(family, label, value string) {
	if d.metrics == nil {
		return
	}
	if err := d.metrics.RecordCounter(family, map[string]string{label: value}); err != nil {
		d.logger.Warn("alert metric not recorded", "family", family, "error", err)
	}
}

func logLevel(l types.AlertLevel) slog.Level {
	switch l {
	case types.AlertLevelCritical, types.AlertLevelError:
		return slog.LevelError
	case types.AlertLevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func newSink(cfg types.AlertConfig, logger *slog.Logger) (Sink, error) {
	s, err := baseSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	// Email applies MinLevel itself.
	if cfg.MinLevel != "" && cfg.Type != types.AlertEmail {
		return NewLevelFilterSink(s, cfg.MinLevel), nil
	}
	return s, nil
}

func baseSink(cfg types.AlertConfig, logger *slog.Logger) (Sink, error) {
	switch cfg.Type {
	case types.AlertConsole:
		return NewConsoleSink(), nil
	case types.AlertWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewBreakerSink(NewWebhookSink(cfg.URL), logger), nil
	case types.AlertEmail:
		return NewEmailSink(EmailConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			To:       cfg.To,
			MinLevel: cfg.MinLevel,
		})
	case types.AlertFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.AlertSNS:
		s, err := NewSNSSink(cfg.TopicARN)
		if err != nil {
			return nil, err
		}
		return NewBreakerSink(s, logger), nil
	default:
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
}
