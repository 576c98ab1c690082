// Package providertest provides shared conformance tests for provider.Provider
// implementations. Call RunAll from a test function to verify a provider
// satisfies the full behavioral contract.
package providertest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetmon/internal/provider"
	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// RunAll runs the complete provider conformance suite as subtests.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("Ping", func(t *testing.T) { require.NoError(t, prov.Ping(context.Background())) })
	t.Run("BucketCounts", func(t *testing.T) { TestBucketCounts(t, prov) })
	t.Run("BucketMissing", func(t *testing.T) { TestBucketMissing(t, prov) })
	t.Run("BucketHoursIndependent", func(t *testing.T) { TestBucketHoursIndependent(t, prov) })
	t.Run("BucketConcurrentIncr", func(t *testing.T) { TestBucketConcurrentIncr(t, prov) })
	t.Run("PutSnapshots", func(t *testing.T) { TestPutSnapshots(t, prov) })
	t.Run("PutSnapshotsSkipsUnencodable", func(t *testing.T) { TestPutSnapshotsSkipsUnencodable(t, prov) })
}

// family returns a bucket family no other test uses.
func family() string {
	return fmt.Sprintf("conf-%s", ulid.Make().String())
}

// TestBucketCounts verifies that increments accumulate and each call returns
// the post-increment counts.
func TestBucketCounts(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	fam := family()

	var last types.HourBucket
	for i := 0; i < 7; i++ {
		b, err := prov.IncrBucket(ctx, fam, "2026101509", true, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), b.Hits)
		last = b
	}
	for i := 0; i < 3; i++ {
		b, err := prov.IncrBucket(ctx, fam, "2026101509", false, time.Hour)
		require.NoError(t, err)
		last = b
	}
	assert.Equal(t, int64(7), last.Hits)
	assert.Equal(t, int64(3), last.Misses)
	assert.InDelta(t, 70.0, last.HitRate(), 1e-9)

	got, err := prov.GetBucket(ctx, fam, "2026101509")
	require.NoError(t, err)
	assert.Equal(t, last.Hits, got.Hits)
	assert.Equal(t, last.Misses, got.Misses)
}

// TestBucketMissing verifies that an absent bucket reads as zero, not an error.
func TestBucketMissing(t *testing.T, prov provider.Provider) {
	got, err := prov.GetBucket(context.Background(), family(), "2026101509")
	require.NoError(t, err)
	assert.Zero(t, got.Hits)
	assert.Zero(t, got.Misses)
	assert.Zero(t, got.HitRate())
}

// TestBucketHoursIndependent verifies that each hour has its own counters.
func TestBucketHoursIndependent(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	fam := family()

	_, err := prov.IncrBucket(ctx, fam, "2026101509", true, time.Hour)
	require.NoError(t, err)
	b, err := prov.IncrBucket(ctx, fam, "2026101510", false, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, b.Hits)
	assert.Equal(t, int64(1), b.Misses)
}

// TestBucketConcurrentIncr verifies increments from concurrent callers are
// never lost.
func TestBucketConcurrentIncr(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	fam := family()
	const workers, perWorker = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(hit bool) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := prov.IncrBucket(ctx, fam, "2026101509", hit, time.Hour)
				assert.NoError(t, err)
			}
		}(w%2 == 0)
	}
	wg.Wait()

	got, err := prov.GetBucket(ctx, fam, "2026101509")
	require.NoError(t, err)
	assert.Equal(t, int64(workers/2*perWorker), got.Hits)
	assert.Equal(t, int64(workers/2*perWorker), got.Misses)
}

// TestPutSnapshots verifies that a batch is accepted, an empty batch is a
// no-op, and writing the same batch twice is not an error.
func TestPutSnapshots(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	now := time.Now().UTC()

	batch := []types.MetricSnapshot{
		{
			ID:        ulid.Make().String(),
			Metric:    types.Metric{Name: "fleet_db_connections_active", Type: types.MetricGauge, Value: 12, Timestamp: now},
			Timestamp: now,
		},
		{
			ID: ulid.Make().String(),
			Metric: types.Metric{
				Name:      "fleet_api_request_duration_seconds",
				Type:      types.MetricHistogram,
				Labels:    map[string]string{"method": "GET", "endpoint": "/vehicles"},
				Value:     0.042,
				Timestamp: now,
			},
			Timestamp: now,
		},
	}

	require.NoError(t, prov.PutSnapshots(ctx, nil, time.Hour))
	require.NoError(t, prov.PutSnapshots(ctx, batch, time.Hour))
	assert.NoError(t, prov.PutSnapshots(ctx, batch, time.Hour))
}

// TestPutSnapshotsSkipsUnencodable verifies that a batch holding a value with
// no JSON encoding is still accepted.
func TestPutSnapshotsSkipsUnencodable(t *testing.T, prov provider.Provider) {
	now := time.Now().UTC()
	batch := []types.MetricSnapshot{
		{
			ID:        ulid.Make().String(),
			Metric:    types.Metric{Name: "fleet_drivers_active", Type: types.MetricGauge, Value: 3, Timestamp: now},
			Timestamp: now,
		},
		{
			ID:        ulid.Make().String(),
			Metric:    types.Metric{Name: "fleet_driver_score", Type: types.MetricHistogram, Value: math.Inf(-1), Timestamp: now},
			Timestamp: now,
		},
	}
	assert.NoError(t, prov.PutSnapshots(context.Background(), batch, time.Hour))
}
