// Package provider defines the storage backend interface for the monitoring engine.
package provider

import (
	"context"
	"time"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// Provider is the storage backend: a shared counter store for hour buckets
// and a durable, TTL-expiring store for metric snapshots. Implementations
// must make bucket increments atomic and expire keys on their own.
type Provider interface {
	// Hour buckets (shared across instances)
	IncrBucket(ctx context.Context, family, hour string, hit bool, ttl time.Duration) (types.HourBucket, error)
	GetBucket(ctx context.Context, family, hour string) (types.HourBucket, error)

	// Durable snapshot buffer. A failed call may have written some of the
	// snapshots; callers retry the whole batch and rely on keys being
	// derived from snapshot IDs so a retry overwrites rather than duplicates.
	// Snapshots that cannot be encoded are skipped, not reported, so one bad
	// value never blocks the rest of the batch.
	PutSnapshots(ctx context.Context, snapshots []types.MetricSnapshot, ttl time.Duration) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
