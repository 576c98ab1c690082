package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `redis:
  addr: localhost:6379
  keyPrefix: "fleet:"
server:
  addr: ":3000"
postgres:
  dsn: postgres://fleet@localhost/fleet
alerts:
  - type: console
  - type: webhook
    url: https://hooks.example.com/ops
    minLevel: error
scheduler:
  flushInterval: 30s
  bufferMax: 500
thresholds:
  apiLatency: 1.5
  window: 10m
logLevel: debug
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "fleet:", cfg.Redis.KeyPrefix)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "postgres://fleet@localhost/fleet", cfg.Postgres.DSN)
	require.Len(t, cfg.Alerts, 2)
	assert.Equal(t, types.AlertLevelError, cfg.Alerts[1].MinLevel)
	assert.Equal(t, "30s", cfg.Scheduler.FlushInterval)
	assert.Equal(t, 500, cfg.Scheduler.BufferMax)
	assert.Equal(t, 1.5, cfg.Thresholds.APILatency)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "redis:\n  addr: localhost:6379\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.NotNil(t, cfg.Scheduler)
	assert.NotNil(t, cfg.Thresholds)
	assert.Nil(t, cfg.Postgres)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"missing redis", "logLevel: info\n", "redis config is required"},
		{"missing redis addr", "redis:\n  db: 1\n", "redis.addr is required"},
		{"bad op timeout", "redis:\n  addr: x:1\n  opTimeout: fast\n", "redis.opTimeout"},
		{"empty postgres dsn", "redis:\n  addr: x:1\npostgres:\n  driverTable: d\n", "postgres.dsn"},
		{"webhook without url", "redis:\n  addr: x:1\nalerts:\n  - type: webhook\n", "alerts[0]: webhook requires url"},
		{"file without path", "redis:\n  addr: x:1\nalerts:\n  - type: console\n  - type: file\n", "alerts[1]: file requires path"},
		{"sns without topic", "redis:\n  addr: x:1\nalerts:\n  - type: sns\n", "topicArn"},
		{"email without recipients", "redis:\n  addr: x:1\nalerts:\n  - type: email\n    smtpAddr: smtp:25\n    from: a@b\n", "email requires"},
		{"unknown sink", "redis:\n  addr: x:1\nalerts:\n  - type: pager\n", "unknown alert type"},
		{"unknown min level", "redis:\n  addr: x:1\nalerts:\n  - type: console\n    minLevel: loud\n", "unknown minLevel"},
		{"bad interval", "redis:\n  addr: x:1\nscheduler:\n  sweepInterval: often\n", "scheduler.sweepInterval"},
		{"negative interval", "redis:\n  addr: x:1\nscheduler:\n  flushInterval: -1s\n", "negative"},
		{"negative buffer", "redis:\n  addr: x:1\nscheduler:\n  bufferMax: -1\n", "bufferMax"},
		{"bad window", "redis:\n  addr: x:1\nthresholds:\n  window: later\n", "thresholds.window"},
		{"bad log level", "redis:\n  addr: x:1\nlogLevel: chatty\n", "logLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDuration(t *testing.T) {
	d, err := Duration("", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = Duration("250ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = Duration("soon", time.Second)
	assert.Error(t, err)
}
