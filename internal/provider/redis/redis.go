// Package redis stores hour buckets and metric snapshots in Redis or Valkey.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

const (
	defaultPrefix = "fleetmon:"
	clientName    = "fleetmon"
)

// RedisProvider implements provider.Provider. Bucket increments run as a
// single script so counters and TTL change together.
type RedisProvider struct {
	client       *goredis.Client
	addr         string
	prefix       string
	logger       *slog.Logger
	bucketScript *goredis.Script
}

// New builds a client from cfg. A valid opTimeout also bounds socket reads
// and writes, so a stalled server cannot hold a recording call past it.
func New(cfg *types.RedisConfig) *RedisProvider {
	opts := &goredis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName,
	}
	if d, err := time.ParseDuration(cfg.OpTimeout); err == nil && d > 0 {
		opts.ReadTimeout = d
		opts.WriteTimeout = d
		opts.ContextTimeoutEnabled = true
	}
	return NewFromClient(goredis.NewClient(opts), cfg.KeyPrefix)
}

// NewFromClient wraps an existing client. An empty prefix selects "fleetmon:".
func NewFromClient(client *goredis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisProvider{
		client:       client,
		addr:         client.Options().Addr,
		prefix:       prefix,
		logger:       slog.Default(),
		bucketScript: goredis.NewScript(incrBucketScript),
	}
}

// SetLogger replaces the default logger. Nil is ignored.
func (p *RedisProvider) SetLogger(l *slog.Logger) {
	if l != nil {
		p.logger = l
	}
}

// Start verifies the server is reachable.
func (p *RedisProvider) Start(ctx context.Context) error {
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("starting redis provider at %s: %w", p.addr, err)
	}
	return nil
}

func (p *RedisProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping reports whether the server answers. The health endpoint calls it.
func (p *RedisProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
