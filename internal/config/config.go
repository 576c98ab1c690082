// Package config handles loading and validation of fleetmon.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// FileName is the config file looked up in the project directory.
const FileName = "fleetmon.yaml"

// DefaultServerAddr is the exposition listener used when server.addr is unset.
const DefaultServerAddr = ":9090"

// Load reads and parses fleetmon.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *types.ProjectConfig) {
	if cfg.Server == nil {
		cfg.Server = &types.ServerConfig{}
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = &types.SchedulerConfig{}
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = &types.ThresholdConfig{}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.Redis == nil {
		return fmt.Errorf("redis config is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if _, err := Duration(cfg.Redis.OpTimeout, 0); err != nil {
		return fmt.Errorf("redis.opTimeout: %w", err)
	}
	if cfg.Postgres != nil && cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when postgres is configured")
	}

	for i, a := range cfg.Alerts {
		if err := validateAlert(a); err != nil {
			return fmt.Errorf("alerts[%d]: %w", i, err)
		}
	}

	s := cfg.Scheduler
	for name, v := range map[string]string{
		"flushInterval":  s.FlushInterval,
		"systemInterval": s.SystemInterval,
		"systemBackoff":  s.SystemBackoff,
		"sweepInterval":  s.SweepInterval,
		"sinkTimeout":    s.SinkTimeout,
	} {
		if _, err := Duration(v, 0); err != nil {
			return fmt.Errorf("scheduler.%s: %w", name, err)
		}
	}
	if s.BufferMax < 0 {
		return fmt.Errorf("scheduler.bufferMax must not be negative")
	}

	if _, err := Duration(cfg.Thresholds.Window, 0); err != nil {
		return fmt.Errorf("thresholds.window: %w", err)
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel %q is not one of debug, info, warn, error", cfg.LogLevel)
	}
	return nil
}

func validateAlert(a types.AlertConfig) error {
	switch a.Type {
	case types.AlertConsole:
	case types.AlertWebhook:
		if a.URL == "" {
			return fmt.Errorf("webhook requires url")
		}
	case types.AlertFile:
		if a.Path == "" {
			return fmt.Errorf("file requires path")
		}
	case types.AlertSNS:
		if a.TopicARN == "" {
			return fmt.Errorf("sns requires topicArn")
		}
	case types.AlertEmail:
		if a.SMTPAddr == "" || a.From == "" || len(a.To) == 0 {
			return fmt.Errorf("email requires smtpAddr, from and to")
		}
	default:
		return fmt.Errorf("unknown alert type %q", a.Type)
	}
	if a.MinLevel != "" && a.MinLevel.Severity() == 0 {
		return fmt.Errorf("unknown minLevel %q", a.MinLevel)
	}
	return nil
}

// Duration parses a Go duration string, returning def for an empty string.
// Negative durations are rejected.
func Duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", s)
	}
	return d, nil
}
