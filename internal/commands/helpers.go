// Package commands implements the CLI subcommands for the fleetmon binary.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dwsmith1983/fleetmon/internal/config"
	"github.com/dwsmith1983/fleetmon/internal/monitor"
	"github.com/dwsmith1983/fleetmon/internal/provider/postgres"
	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// newLogger builds the JSON logger used by long-running commands.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// intervals converts the scheduler section into task periods.
func intervals(cfg *types.SchedulerConfig) (monitor.Intervals, error) {
	var iv monitor.Intervals
	if cfg == nil {
		return iv, nil
	}
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"flushInterval", cfg.FlushInterval, &iv.Flush},
		{"systemInterval", cfg.SystemInterval, &iv.System},
		{"systemBackoff", cfg.SystemBackoff, &iv.SystemBackoff},
		{"sweepInterval", cfg.SweepInterval, &iv.Sweep},
	}
	for _, f := range fields {
		d, err := config.Duration(f.raw, 0)
		if err != nil {
			return monitor.Intervals{}, fmt.Errorf("scheduler.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return iv, nil
}

// systemSource returns a Postgres-backed source when configured and the
// static source otherwise. The returned *postgres.Source is nil for the
// static source.
func systemSource(ctx context.Context, cfg *types.PostgresConfig) (monitor.SystemSource, *postgres.Source, error) {
	if cfg == nil {
		return monitor.DefaultStaticSource, nil, nil
	}
	src, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return src, src, nil
}

// describeSink renders a one-line summary of an alert sink config.
func describeSink(a types.AlertConfig) string {
	target := ""
	switch a.Type {
	case types.AlertWebhook:
		target = a.URL
	case types.AlertFile:
		target = a.Path
	case types.AlertSNS:
		target = a.TopicARN
	case types.AlertEmail:
		target = fmt.Sprintf("%s -> %s", a.SMTPAddr, strings.Join(a.To, ","))
	}
	s := string(a.Type)
	if target != "" {
		s += " " + target
	}
	if a.MinLevel != "" {
		s += fmt.Sprintf(" (min %s)", a.MinLevel)
	}
	return s
}
